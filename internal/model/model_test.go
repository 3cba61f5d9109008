package model

import (
	"testing"
	"time"
)

func TestSenderTypeCounterpart(t *testing.T) {
	if SenderDoctor.Counterpart() != SenderUser {
		t.Errorf("doctor counterpart = %q", SenderDoctor.Counterpart())
	}
	if SenderUser.Counterpart() != SenderDoctor {
		t.Errorf("user counterpart = %q", SenderUser.Counterpart())
	}
	if SenderType("admin").Valid() {
		t.Error("admin must not be a valid sender type")
	}
	if SenderType("admin").Counterpart() != "" {
		t.Error("unknown sender type has no counterpart")
	}
}

func TestNewConversationDefaults(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := NewConversation("doc-1", "pat-1", now)

	if !c.IsActive {
		t.Error("new conversation should be active")
	}
	if c.Messages == nil || len(c.Messages) != 0 {
		t.Errorf("expected empty non-nil log, got %v", c.Messages)
	}
	if c.ConnectionStatus != StatusDisconnected {
		t.Errorf("expected disconnected, got %q", c.ConnectionStatus)
	}
	if c.SessionTimeout != DefaultSessionTimeout {
		t.Errorf("expected default session timeout, got %v", c.SessionTimeout)
	}
	if !c.LastActivity.Equal(now) || !c.LastMessageAt.Equal(now) {
		t.Error("timestamps should start at creation time")
	}
}

func TestIsParticipant(t *testing.T) {
	c := NewConversation("doc-1", "pat-1", time.Now())

	if !c.IsParticipant("doc-1", SenderDoctor) {
		t.Error("doc-1 is the doctor")
	}
	if c.IsParticipant("doc-1", SenderUser) {
		t.Error("doc-1 is not the patient")
	}
	if c.IsParticipant("", SenderUser) {
		t.Error("empty id never participates")
	}
	if c.LastMessage() != nil {
		t.Error("empty log has no last message")
	}
}
