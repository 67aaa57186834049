package wire

import (
	"testing"
	"time"
)

func TestParseIdentity(t *testing.T) {
	msg, err := Parse("ID:MH-AC-WMP-1,CC:3F:1D:01:63:D5,192.168.1.50,ASCII,v0.1.0,-51,Living room,N")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	id, err := ParseIdentity(msg.Payload)
	if err != nil {
		t.Fatalf("ParseIdentity failed: %v", err)
	}

	if id.Model != "MH-AC-WMP-1" {
		t.Errorf("Model = %q", id.Model)
	}
	if id.MAC != "CC3F1D0163D5" {
		t.Errorf("MAC = %q, want normalized CC3F1D0163D5", id.MAC)
	}
	if id.IP != "192.168.1.50" || id.Protocol != "ASCII" || id.RSSI != -51 {
		t.Errorf("identity = %+v", id)
	}
	if id.Name != "Living room" || id.Flags != "N" {
		t.Errorf("name/flags = %q/%q", id.Name, id.Flags)
	}

	if _, err := ParseIdentity("too,short"); err == nil {
		t.Error("expected error for short ID payload")
	}
}

func TestParseDiscoveryReply(t *testing.T) {
	rec, err := ParseDiscoveryReply("DISCOVER:MH-AC-WMP-1,CC3F1D0163D5,192.168.1.50,ASCII,v0.1.0,-51,Attic,N,1")
	if err != nil {
		t.Fatalf("ParseDiscoveryReply failed: %v", err)
	}
	if rec.MAC != "CC3F1D0163D5" || rec.IP != "192.168.1.50" || rec.UnitCount != 1 {
		t.Errorf("record = %+v", rec)
	}
	if !rec.Compatible() {
		t.Error("expected record to be compatible")
	}

	// Wrong protocol tag
	rec, err = ParseDiscoveryReply("DISCOVER:MH-AC-WMP-1,AABBCCDDEEFF,10.0.0.2,MODBUS,v1,-60,X,N,1")
	if err != nil {
		t.Fatalf("ParseDiscoveryReply failed: %v", err)
	}
	if rec.Compatible() {
		t.Error("non-ASCII protocol must be incompatible")
	}

	// Foreign model family
	rec, err = ParseDiscoveryReply("DISCOVER:ACME-THERMO-9,AABBCCDDEEFF,10.0.0.3,ASCII,v1,-60,X,N,1")
	if err != nil {
		t.Fatalf("ParseDiscoveryReply failed: %v", err)
	}
	if rec.Compatible() {
		t.Error("foreign model family must be incompatible")
	}

	// Not a DISCOVER line
	if _, err := ParseDiscoveryReply("HELLO:world"); err == nil {
		t.Error("expected error for foreign datagram")
	}
}

func TestIsSupportedModel(t *testing.T) {
	for model, want := range map[string]bool{
		"MH-AC-WMP-1":  true,
		"IS-IR-WMP-1":  true,
		"DK-RC-WMP-16": true,
		"mh-ac-wmp-1":  true,
		"MH-AC-MBS-1":  false,
		"":             false,
		"WMP":          false,
	} {
		if got := IsSupportedModel(model); got != want {
			t.Errorf("IsSupportedModel(%q) = %v, want %v", model, got, want)
		}
	}
}

func TestFormatCommands(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{FormatID(), "ID"},
		{FormatInfo(), "INFO"},
		{FormatPing(), "PING"},
		{FormatLimitsQuery(FuncMode), "LIMITS:MODE"},
		{FormatLimitsQueryAll(), "LIMITS:*"},
		{FormatGet(1, FuncSetpoint), "GET,1:SETPTEMP"},
		{FormatGetAll(2), "GET,2:*"},
		{FormatSet(1, FuncMode, "COOL"), "SET,1:MODE,COOL"},
		{FormatDeviceName("Attic"), "CFG:DEVICENAME,Attic"},
		{FormatProxyConnect("192.168.1.50", 3310, "gw1", 500*time.Millisecond),
			"CONN 192.168.1.50:3310 NTFY=gw1 RTIM=500 PACE=1"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}

	dt := FormatDateTime(time.Date(2026, 8, 30, 14, 5, 9, 0, time.UTC))
	if dt != "CFG:DATETIME,30/08/2026 14:05:09" {
		t.Errorf("FormatDateTime = %q", dt)
	}
}
