package model

import "time"

// Invite は相性占いへの招待トークンを表す。
// トークン本体は保存せず、フィンガープリントを主キーとする。
type Invite struct {
	ID          string
	TokenHash   string
	InviterID   string
	InviterName string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	ConsumedAt  *time.Time
	ConsumedBy  string
}

// IsExpired はnow時点で有効期限を過ぎているかを返す。
// 期限ちょうどの時刻は失効扱い。
func (i *Invite) IsExpired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// IsConsumed は使用済みかどうかを返す。
func (i *Invite) IsConsumed() bool {
	return i.ConsumedAt != nil
}
