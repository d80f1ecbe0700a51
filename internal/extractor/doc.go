// Package extractor drives one browser session through the stream funnel of a
// content page and returns the direct media URL behind it.
//
// The walk is an explicit state machine:
//
//	Idle -> TriggerClicked -> Frame1Entered -> PlayTriggered -> AdWindow
//	     -> Frame2Entered -> PollingForSrc -> Found | TimedOut
//
// Every wait is bounded by a configured timeout and measured on an injectable
// Clock, so the whole machine runs against a fake Session in tests. The
// session is always returned to the top-level frame before Extract returns.
// A Session is stateful and must not be shared between concurrent callers.
package extractor
