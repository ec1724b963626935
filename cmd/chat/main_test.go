package main

import (
	"testing"

	"nostrchat/internal/broker"
)

func TestParseCommand_RelayActions(t *testing.T) {
	cmd, err := parseCommand("relay add wss://relay.example.com")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	add, ok := cmd.(broker.AddRelay)
	if !ok || add.URL != "wss://relay.example.com" {
		t.Fatalf("unexpected command: %#v", cmd)
	}

	cmd, err = parseCommand("relay disconnect wss://relay.example.com")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := cmd.(broker.DisconnectRelay); !ok {
		t.Fatalf("unexpected command: %#v", cmd)
	}
}

func TestParseCommand_ContactAdd(t *testing.T) {
	cmd, err := parseCommand("contact add alice npub1example")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	add, ok := cmd.(broker.AddContact)
	if !ok {
		t.Fatalf("unexpected command: %#v", cmd)
	}
	if add.Contact.Alias != "alice" || add.Contact.PublicKey != "npub1example" {
		t.Fatalf("unexpected contact: %+v", add.Contact)
	}
}

func TestParseCommand_SendJoinsMessageWords(t *testing.T) {
	cmd, err := parseCommand("send pk-bob hello out there")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	send, ok := cmd.(broker.SendMessage)
	if !ok {
		t.Fatalf("unexpected command: %#v", cmd)
	}
	if send.PublicKey != "pk-bob" || send.Content != "hello out there" {
		t.Fatalf("unexpected send: %+v", send)
	}
}

func TestParseCommand_Errors(t *testing.T) {
	for _, line := range []string{
		"",
		"frobnicate",
		"relay add",
		"relay explode wss://x",
		"contact add alice",
		"key restore",
		"send pk-bob",
	} {
		if _, err := parseCommand(line); err == nil {
			t.Fatalf("expected error for %q", line)
		}
	}
}
