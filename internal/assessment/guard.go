package assessment

// guard watches the environment for fullscreen exit and page hiding and
// forces submission on the first loss. It is only armed by Start.
type guard struct {
	session     *Session
	signals     <-chan Signal
	unsubscribe func()
}

func newGuard(s *Session, env Environment) *guard {
	signals, unsubscribe := env.Subscribe()
	return &guard{session: s, signals: signals, unsubscribe: unsubscribe}
}

func (g *guard) run() {
	defer g.unsubscribe()

	for {
		select {
		case <-g.session.done:
			return
		case sig, ok := <-g.signals:
			if !ok {
				return
			}
			reason, loss := sig.lossReason()
			if !loss {
				continue
			}
			g.session.log.Warn().Str("signal", string(sig)).Msg("Integrity guard triggered")
			g.session.ForceSubmit(g.session.lifetime(), reason)
			return
		}
	}
}
