// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package extension negotiates the vendor command-queue throttling
// path. Queue creation goes through the helper so callers never see
// whether the extension or the standard path produced the queue; if
// the adapter is not recognized or the extension request fails, the
// helper silently falls back.
package extension

import (
	"errors"
	"log/slog"

	"github.com/gogpu/particles/gpu"
)

// ErrNoDevice is returned when the helper is built without a device.
var ErrNoDevice = errors.New("extension: nil device")

// Helper wraps one device's queue creation. A helper is bound to the
// device it was negotiated for; reconfiguring the device requires a
// fresh helper.
type Helper struct {
	device  gpu.Device
	enabled bool
	log     *slog.Logger
}

// New negotiates extension support for the device. Negotiation never
// fails: unsupported adapters simply produce a disabled helper.
func New(device gpu.Device, log *slog.Logger) (*Helper, error) {
	if device == nil {
		return nil, ErrNoDevice
	}
	h := &Helper{
		device:  device,
		enabled: device.Adapter().Info().Throttle,
		log:     log,
	}
	if h.log != nil {
		h.log.Debug("extension negotiated",
			"adapter", device.Adapter().Info().Name,
			"enabled", h.enabled)
	}
	return h, nil
}

// Enabled reports whether the throttling path is active.
func (h *Helper) Enabled() bool { return h.enabled }

// CreateQueue creates a queue of the given role. When the extension is
// enabled and preferred, the queue goes through the throttling path;
// any failure there falls back to the standard path without surfacing
// an error, because the choice must stay invisible downstream.
func (h *Helper) CreateQueue(t gpu.QueueType, preferThrottle bool) (gpu.Queue, error) {
	if h.enabled && preferThrottle {
		q, err := h.device.CreateQueue(t, true)
		if err == nil {
			return q, nil
		}
		if h.log != nil {
			h.log.Debug("extension queue failed, using standard path",
				"type", t.String(), "err", err)
		}
	}
	return h.device.CreateQueue(t, false)
}
