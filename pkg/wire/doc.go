// Package wire implements the WMP ASCII line protocol.
//
// WMP is a line-oriented protocol spoken by HVAC gateways over TCP.
// Lines are terminated by CR (LF tolerated) and have the form
//
//	TYPE[,unit]:PAYLOAD
//
// where PAYLOAD is split on ':' into segments and each segment on ','
// into fields. Examples:
//
//	ID:MH-AC-WMP-1,CC3F1D0163D5,192.168.1.50,ASCII,v0.1.0,-51,Living,N
//	CHN,1:MODE,COOL
//	LIMITS:SETPTEMP,[160,320]
//	ACK
//
// The package provides the line scanner (CR/LF framing over a byte
// stream), the parsed Message representation with its closed type and
// function enums, command formatting, and parsing of identity and
// discovery payloads.
package wire
