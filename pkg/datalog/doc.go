// Package datalog persists CAN traffic to session files.
package datalog

// A real-time producer (the CAN receive loop) pushes fixed-layout binary
// records into a Ring. A background writer task drains the Ring in bounded
// chunks and appends the bytes verbatim to the current session file. The
// producer never waits on storage: when the Ring has no room for a whole
// record the record is dropped and counted.
//
// Session file layout (little-endian, no delimiters):
//
//	0  magic "SDLG"     4 bytes
//	4  format version   1 byte
//	5  records          tag-implied fixed size each
//
// Frame record (vehicle or sniff):
//
//	0  type tag         1 byte
//	1  timestamp (us)   8 bytes
//	9  bus id           4 bytes
//	13 declared length  1 byte
//	14 data             8 bytes, zero past declared length
//
// Version must be bumped whenever a record layout, tag meaning or ordering
// rule changes.
