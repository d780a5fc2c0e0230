package account

// NotificationIncrementer records one more unread notification for a token.
type NotificationIncrementer interface {
	IncrementNotificationCount(token string) int
}

type refreshingCounter struct {
	inc      NotificationIncrementer
	selector *Selector
}

// RefreshingCounter wraps inc so every increment also schedules a selector
// refresh through Watch, which keeps the badge current while accounts other
// than the active one receive notifications.
func (s *Selector) RefreshingCounter(inc NotificationIncrementer) NotificationIncrementer {
	return refreshingCounter{inc: inc, selector: s}
}

func (c refreshingCounter) IncrementNotificationCount(token string) int {
	n := c.inc.IncrementNotificationCount(token)
	c.selector.CountsChanged()
	return n
}
