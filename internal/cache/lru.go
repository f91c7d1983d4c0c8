// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

package cache

import "time"

// entry is a cache record and its node in the access-order list.
type entry struct {
	key          string
	value        any
	createdAt    time.Time
	ttl          time.Duration
	accessCount  int64
	lastAccessed time.Time

	prev *entry
	next *entry
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// accessList is an intrusive doubly-linked list with sentinels.
// head.next is the most recently accessed entry, tail.prev the least.
type accessList struct {
	head entry
	tail entry
}

func (l *accessList) init() {
	l.head.next = &l.tail
	l.tail.prev = &l.head
	l.head.prev = nil
	l.tail.next = nil
}

func (l *accessList) pushFront(e *entry) {
	e.prev = &l.head
	e.next = l.head.next
	l.head.next.prev = e
	l.head.next = e
}

func (l *accessList) remove(e *entry) {
	if e.prev == nil || e.next == nil {
		return
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev = nil
	e.next = nil
}

func (l *accessList) moveToFront(e *entry) {
	if l.head.next == e {
		return
	}
	l.remove(e)
	l.pushFront(e)
}

// back returns the least recently accessed entry, or nil.
func (l *accessList) back() *entry {
	if l.tail.prev == &l.head {
		return nil
	}
	return l.tail.prev
}

// prev returns the next more recently accessed entry, or nil at the head.
func (l *accessList) prev(e *entry) *entry {
	if e.prev == &l.head {
		return nil
	}
	return e.prev
}
