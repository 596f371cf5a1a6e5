package catalogsync

// WriteStatus is the outcome of one coordinated write.
type WriteStatus struct {
	Online          bool
	RemoteReachable bool
	RemoteAttempted bool
	Remote          bool
	Local           bool
	RemoteErr       error
	LocalErr        error
}

// Err returns the local failure, the only one that fails a write.
func (s WriteStatus) Err() error {
	return s.LocalErr
}

// Outcome picks the single notice describing the write.
func (s WriteStatus) Outcome() Notice {
	switch {
	case !s.Local:
		return Notice{Level: LevelError, Message: MsgFailed}
	case s.Remote:
		return Notice{Level: LevelSuccess, Message: MsgSaved}
	case !s.Online:
		return Notice{Level: LevelWarning, Message: MsgSavedOffline}
	case s.RemoteAttempted:
		return Notice{Level: LevelWarning, Message: MsgSavedBackendError}
	default:
		return Notice{Level: LevelWarning, Message: MsgSavedBackendDown}
	}
}
