//go:build !linux

package core

func notifyReady()    {}
func notifyStopping() {}
