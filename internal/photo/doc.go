// Package photo reassembles image frames from sequenced photo notifications.
//
// A frame starts with sequence id 0, continues with contiguous ids and is
// completed by the end marker. Any gap discards the frame; no reordering is
// attempted.
package photo
