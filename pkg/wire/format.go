package wire

import (
	"fmt"
	"time"
)

// Command formatting. All functions return the line without its CR
// terminator; the transport appends it on send.

// FormatID builds an identity query.
func FormatID() string { return "ID" }

// FormatInfo builds a configuration query.
func FormatInfo() string { return "INFO" }

// FormatPing builds a keep-alive probe.
func FormatPing() string { return "PING" }

// FormatLimitsQuery builds a limits query for one function.
func FormatLimitsQuery(fn Function) string {
	return fmt.Sprintf("LIMITS:%s", fn)
}

// FormatLimitsQueryAll builds a limits query for every function.
func FormatLimitsQueryAll() string { return "LIMITS:*" }

// FormatGet builds a state query for one function of one unit.
func FormatGet(unit int, fn Function) string {
	return fmt.Sprintf("GET,%d:%s", unit, fn)
}

// FormatGetAll builds a full-status query for one unit.
func FormatGetAll(unit int) string {
	return fmt.Sprintf("GET,%d:*", unit)
}

// FormatSet builds a state-change command for one function of one unit.
func FormatSet(unit int, fn Function, value string) string {
	return fmt.Sprintf("SET,%d:%s,%s", unit, fn, value)
}

// FormatDeviceName builds a gateway rename command.
func FormatDeviceName(name string) string {
	return fmt.Sprintf("CFG:DEVICENAME,%s", name)
}

// FormatDateTime builds a gateway clock-sync command. The gateway expects
// local time as dd/mm/yyyy HH:MM:SS.
func FormatDateTime(t time.Time) string {
	return fmt.Sprintf("CFG:DATETIME,%s", t.Format("02/01/2006 15:04:05"))
}

// FormatProxyConnect builds the relay-proxy connect directive. The proxy
// holds the TCP session to target on the client's behalf and notifies
// callback id when data arrives, re-checking every rtim milliseconds.
func FormatProxyConnect(targetHost string, targetPort int, notifyID string, rtim time.Duration) string {
	return fmt.Sprintf("CONN %s:%d NTFY=%s RTIM=%d PACE=1",
		targetHost, targetPort, notifyID, rtim.Milliseconds())
}
