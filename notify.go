// SPDX-FileCopyrightText: 2023 Weston Schmidt <weston_schmidt@alumni.purdue.edu>
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/coreos/go-systemd/daemon"
	"go.uber.org/zap"
)

const (
	sdReady    = daemon.SdNotifyReady
	sdStopping = daemon.SdNotifyStopping
)

// sdNotify tells systemd about the service state.  Outside of systemd it
// does nothing.
func sdNotify(log *zap.Logger) func(state string) {
	return func(state string) {
		sent, err := daemon.SdNotify(false, state)
		switch {
		case err != nil:
			log.Warn("systemd notify failed", zap.String("state", state), zap.Error(err))
		case sent:
			log.Debug("systemd notified", zap.String("state", state))
		}
	}
}
