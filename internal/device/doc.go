// Package device holds the reconciled state of Nomiku cookers.
//
// A Record keeps what the caller should see for one cooker. Inbound broker
// messages are decoded per attribute (see Attribute.Parse) and applied with
// UpdateState. Caller-initiated changes go through ApplyLocalChange and are
// shown immediately but marked provisional until the device echoes the same
// value. EndProvisional reverts whatever the device never confirmed.
//
// # Wire format
//
// The firmware publishes one topic per attribute with a plain-text payload.
// Two composite topics expand into several attributes:
//
//	timer  "300"         -> timerRunning=false, timerSecs=300
//	timer  "1700000000"  -> timerRunning=true,  timerEnd=1700000000
//	json   {"temp":55.2} -> temp=55.2
//
// Timer values above TimerEpochThreshold are epoch seconds.
//
// # Persistence
//
// SQLiteRepository caches the directory's device list and
// SQLiteStateHistoryRepository records emitted snapshots.
package device
