package realtime

// Typed client->server operations for the chat namespace. These make
// Manager satisfy chat.Conn.

func (m *Manager) JoinSession(sessionID int64) error {
	frame, err := NewJoinSession(sessionID)
	if err != nil {
		return err
	}
	return m.Emit(frame)
}

func (m *Manager) LeaveSession(sessionID int64) error {
	frame, err := NewLeaveSession(sessionID)
	if err != nil {
		return err
	}
	return m.Emit(frame)
}

func (m *Manager) RequestHistory(sessionID int64, sinceMessageID *int64) error {
	frame, err := NewRequestHistory(sessionID, sinceMessageID)
	if err != nil {
		return err
	}
	return m.Emit(frame)
}

func (m *Manager) SendChatMessage(sessionID int64, text string) error {
	frame, err := NewSendMessage(sessionID, text)
	if err != nil {
		return err
	}
	return m.Emit(frame)
}

func (m *Manager) EndSession(sessionID int64) error {
	frame, err := NewEndSession(sessionID)
	if err != nil {
		return err
	}
	return m.Emit(frame)
}

func (m *Manager) TypingStart(sessionID int64) error {
	frame, err := NewTypingStart(sessionID)
	if err != nil {
		return err
	}
	return m.Emit(frame)
}

func (m *Manager) TypingStop(sessionID int64) error {
	frame, err := NewTypingStop(sessionID)
	if err != nil {
		return err
	}
	return m.Emit(frame)
}
