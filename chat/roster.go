package chat

// Roster is the set of online users as of the last successful presence poll.
// It is replaced wholesale, never merged.
type Roster struct {
	users []User
}

// Replace swaps in a copy of users as the new roster.
func (r *Roster) Replace(users []User) {
	next := make([]User, len(users))
	copy(next, users)
	r.users = next
}

// View returns a read-only view of the roster.
func (r *Roster) View() []User {
	n := len(r.users)
	return r.users[:n:n]
}

// Len returns the number of users.
func (r *Roster) Len() int {
	return len(r.users)
}

// Reset discards the roster.
func (r *Roster) Reset() {
	r.users = nil
}
