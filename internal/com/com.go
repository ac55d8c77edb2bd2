// Package com implements the generic communication auxiliary: raw send
// and receive over any channel. It is the canonical dual-threaded
// auxiliary - a transmit path driven by commands and a receive loop that
// surfaces every inbound message as a report.
package com

import (
	"fmt"
	"log"
	"time"

	"github.com/dyluth/rig/internal/auxiliary"
	"github.com/dyluth/rig/pkg/channel"
)

// Command names understood by the handler.
const (
	// CmdSend transmits the command payload on the channel. The reply is
	// an empty report acknowledging the send.
	CmdSend = "send"
)

// Handler drives one channel. It implements auxiliary.Handler and
// auxiliary.Receiver.
type Handler struct {
	alias string
	ch    channel.Channel
}

var (
	_ auxiliary.Handler  = (*Handler)(nil)
	_ auxiliary.Receiver = (*Handler)(nil)
)

// NewHandler binds a communication auxiliary to its channel.
func NewHandler(alias string, ch channel.Channel) *Handler {
	return &Handler{alias: alias, ch: ch}
}

// CreateInstance opens the channel.
func (h *Handler) CreateInstance() error {
	if err := h.ch.Open(); err != nil {
		return fmt.Errorf("com %q: %w", h.alias, err)
	}
	return nil
}

// DeleteInstance closes the channel. Tolerates partial setup.
func (h *Handler) DeleteInstance() error {
	if err := h.ch.Close(); err != nil {
		return fmt.Errorf("com %q: %w", h.alias, err)
	}
	return nil
}

// RunCommand dispatches one named command.
func (h *Handler) RunCommand(name string, data []byte) (*auxiliary.Report, error) {
	switch name {
	case CmdSend:
		if err := h.ch.Send(data); err != nil {
			return nil, fmt.Errorf("com %q: send failed: %w", h.alias, err)
		}
		return &auxiliary.Report{}, nil
	default:
		return nil, fmt.Errorf("com %q: unknown command %q", h.alias, name)
	}
}

// AbortCommand has no in-flight work to cancel for a raw channel; it only
// logs the request.
func (h *Handler) AbortCommand() error {
	log.Printf("[Com] %s: abort requested, nothing in flight", h.alias)
	return nil
}

// ReceiveMessage polls the channel for one inbound message.
func (h *Handler) ReceiveMessage(timeout time.Duration) (*auxiliary.Report, error) {
	msg, err := h.ch.Receive(timeout)
	if err != nil {
		return nil, err
	}
	if msg.Empty() {
		return nil, nil
	}
	return &auxiliary.Report{Payload: msg.Payload, Meta: msg.Meta}, nil
}
