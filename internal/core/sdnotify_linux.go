//go:build linux

package core

import "github.com/coreos/go-systemd/v22/daemon"

// Best-effort sd_notify; a daemon run outside systemd simply has no socket.

func notifyReady()    { _, _ = daemon.SdNotify(false, daemon.SdNotifyReady) }
func notifyStopping() { _, _ = daemon.SdNotify(false, daemon.SdNotifyStopping) }
