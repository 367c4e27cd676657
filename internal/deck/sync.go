package deck

// SetRate applies a manual pitch change in [0.92,1.08]. The deck leaves any
// sync it was in; decks synced to it follow.
func (d *Deck) SetRate(r float64) {
	d.mu.Lock()
	leader := d.leader
	d.leader = nil
	d.synced = false
	r = d.applyRateLocked(r)
	followers := d.followerList()
	d.mu.Unlock()

	if leader != nil {
		leader.removeFollower(d)
	}
	for _, f := range followers {
		f.followRate(r)
	}
}

// Rate returns the playback rate.
func (d *Deck) Rate() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rate
}

// Synced reports whether the deck is following another deck's rate.
func (d *Deck) Synced() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.synced
}

// SyncTo copies leader's rate onto d and keeps following it until d's rate is
// changed by hand.
func (d *Deck) SyncTo(leader *Deck) error {
	if leader == d {
		return ErrSelfSync
	}
	if leader.leaderIs(d) {
		leader.dropLeader(d)
		d.removeFollower(leader)
	}

	d.mu.Lock()
	prev := d.leader
	d.leader = leader
	d.synced = true
	d.mu.Unlock()

	if prev != nil && prev != leader {
		prev.removeFollower(d)
	}
	// Register before reading the rate so a leader change in between is
	// pushed to d rather than lost.
	leader.addFollower(d)

	for {
		r := leader.Rate()
		d.mu.Lock()
		if d.leader != leader || !d.synced {
			d.mu.Unlock()
			return nil
		}
		r = d.applyRateLocked(r)
		followers := d.followerList()
		d.mu.Unlock()
		for _, f := range followers {
			f.followRate(r)
		}
		if leader.Rate() == r {
			return nil
		}
	}
}

// followRate is a rate change pushed by the leader; the sync flag stays set.
func (d *Deck) followRate(r float64) {
	d.mu.Lock()
	if !d.synced || clampRate(r) == d.rate {
		d.mu.Unlock()
		return
	}
	r = d.applyRateLocked(r)
	followers := d.followerList()
	d.mu.Unlock()
	for _, f := range followers {
		f.followRate(r)
	}
}

func (d *Deck) applyRateLocked(r float64) float64 {
	r = clampRate(r)
	d.rate = r
	if d.src != nil {
		d.src.SetRate(r)
	}
	return r
}

func (d *Deck) followerList() []*Deck {
	out := make([]*Deck, 0, len(d.followers))
	for f := range d.followers {
		out = append(out, f)
	}
	return out
}

func (d *Deck) addFollower(f *Deck) {
	d.mu.Lock()
	d.followers[f] = struct{}{}
	d.mu.Unlock()
}

func (d *Deck) removeFollower(f *Deck) {
	d.mu.Lock()
	delete(d.followers, f)
	d.mu.Unlock()
}

func (d *Deck) dropLeader(l *Deck) {
	d.mu.Lock()
	if d.leader == l {
		d.leader = nil
		d.synced = false
	}
	d.mu.Unlock()
}

func (d *Deck) leaderIs(l *Deck) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.leader == l
}
