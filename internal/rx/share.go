package rx

import "sync"

// shareConn is one connection of a shared source: the subject that fans
// values out, the upstream subscription and the live subscriber count.
type shareConn[T any] struct {
	subject  *Subject[T]
	upstream *Subscription
	refs     int
}

// Share multicasts a single upstream subscription to every subscriber.
//
// The upstream is subscribed when the first subscriber arrives and
// cancelled when the last one leaves. After the upstream terminates or is
// disconnected, the next subscriber starts a fresh connection.
func (o Observable[T]) Share() Observable[T] {
	var mu sync.Mutex
	var current *shareConn[T]

	return New(func(s *Subscriber[T]) {
		mu.Lock()
		conn := current
		connect := false
		if conn == nil {
			conn = &shareConn[T]{subject: NewSubject[T]()}
			current = conn
			connect = true
		}
		conn.refs++
		mu.Unlock()

		s.Add(func() {
			mu.Lock()
			conn.refs--
			var upstream *Subscription
			if conn.refs == 0 {
				upstream = conn.upstream
				if current == conn {
					current = nil
				}
			}
			mu.Unlock()
			if upstream != nil {
				upstream.Unsubscribe()
			}
		})

		conn.subject.Observable().subscribeChild(s.Subscription, s)

		if !connect {
			return
		}

		detach := func() {
			mu.Lock()
			if current == conn {
				current = nil
			}
			mu.Unlock()
		}

		upstream := o.Subscribe(ObserverFuncs[T]{
			OnNext: conn.subject.Next,
			OnError: func(err error) {
				detach()
				conn.subject.Error(err)
			},
			OnComplete: func() {
				detach()
				conn.subject.Complete()
			},
		})

		mu.Lock()
		conn.upstream = upstream
		orphaned := conn.refs == 0
		mu.Unlock()
		if orphaned {
			upstream.Unsubscribe()
		}
	})
}
