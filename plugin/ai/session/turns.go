package session

import (
	"context"
	"time"
)

// MaxTailMessages bounds the conversation tail kept per session.
const MaxTailMessages = 6

// TurnLog maintains the prior-turn record and a sliding conversation tail.
type TurnLog struct {
	svc StateService
}

// NewTurnLog creates a turn log on top of svc.
func NewTurnLog(svc StateService) *TurnLog {
	return &TurnLog{svc: svc}
}

// Load returns the turn history of a session, empty for a new session.
func (l *TurnLog) Load(ctx context.Context, key Key) (*Turns, error) {
	turns := &Turns{}
	if _, err := l.svc.Get(ctx, key, KindTurns, turns); err != nil {
		return nil, err
	}
	return turns, nil
}

// Append records a completed turn and returns the updated history.
func (l *TurnLog) Append(ctx context.Context, key Key, turn PriorTurn) (*Turns, error) {
	turns, err := l.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if turn.At.IsZero() {
		turn.At = time.Now()
	}

	turns.Count++
	turns.Last = &turn
	turns.Tail = append(turns.Tail,
		Message{Role: "user", Content: turn.Query},
		Message{Role: "assistant", Content: turn.Response},
	)
	if len(turns.Tail) > MaxTailMessages {
		turns.Tail = turns.Tail[len(turns.Tail)-MaxTailMessages:]
	}

	if err := l.svc.Put(ctx, key, KindTurns, turns, 0); err != nil {
		return nil, err
	}
	return turns, nil
}
