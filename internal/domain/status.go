package domain

// StatusUpdate is a partial presence update. A nil field means "leave as is".
type StatusUpdate struct {
	Muted    *bool `json:"muted,omitempty"`
	VideoOff *bool `json:"videoOff,omitempty"`
}

func (u StatusUpdate) Empty() bool {
	return u.Muted == nil && u.VideoOff == nil
}

// ApplyTo merges the present fields into m and reports whether anything changed.
func (u StatusUpdate) ApplyTo(m *Member) bool {
	changed := false
	if u.Muted != nil && m.Muted != *u.Muted {
		m.Muted = *u.Muted
		changed = true
	}
	if u.VideoOff != nil && m.VideoOff != *u.VideoOff {
		m.VideoOff = *u.VideoOff
		changed = true
	}
	return changed
}
