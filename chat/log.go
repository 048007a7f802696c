package chat

// Log is the arrival-ordered message log of one mounted session. No two
// entries share an Identity. Log is not safe for concurrent mutation; the
// engine's reactor is its only writer.
type Log struct {
	msgs []Message
	seen map[Identity]struct{}
}

// Merge appends m unless an entry with the same identity is already present.
// It reports whether the log changed.
func (l *Log) Merge(m Message) bool {
	id := m.Identity()
	if _, dup := l.seen[id]; dup {
		return false
	}
	if l.seen == nil {
		l.seen = make(map[Identity]struct{})
	}
	l.seen[id] = struct{}{}
	l.msgs = append(l.msgs, m)
	return true
}

// Len returns the number of entries.
func (l *Log) Len() int {
	return len(l.msgs)
}

// View returns a read-only view of the current entries. The log only ever
// appends, so a view stays valid after later merges; the capacity is clipped
// so appending to the view cannot write into the log.
func (l *Log) View() []Message {
	n := len(l.msgs)
	return l.msgs[:n:n]
}

// Reset discards every entry.
func (l *Log) Reset() {
	l.msgs = nil
	l.seen = nil
}

// Merge is the functional form of Log.Merge: it returns log unchanged when m
// duplicates an entry, otherwise a new slice with m appended. log itself is
// never modified.
func Merge(log []Message, m Message) []Message {
	id := m.Identity()
	for _, existing := range log {
		if existing.Identity() == id {
			return log
		}
	}
	out := make([]Message, len(log), len(log)+1)
	copy(out, log)
	return append(out, m)
}
