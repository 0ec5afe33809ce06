// Package hl7 parses and serializes HL7 v2.x messages, batches and files.
//
// Text is split recursively on the separators declared in the MSH, BHS or
// FHS header into a tree of containers: Message, Segment, Field,
// Repetition, Component, with string Leaf values at the bottom. Values
// keep their wire form; Extract and Get unescape on the way out, Assign
// and Set escape on the way in. Serializing an unmodified tree reproduces
// the input.
//
//	msg, err := hl7.Parse(text)
//	name, err := msg.Get("PID.5.1")
//	ack, err := msg.CreateACK(hl7.AckAccept, nil)
package hl7
