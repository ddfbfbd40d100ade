package governance

import (
	"math/rand"
	"sort"

	"nodechain/chainstate"
	"nodechain/xtypes"
)

// ElectionConfig bounds how many producers of each kind fill a schedule
// (spec.md §4.8 "Election": "top N_dpos producers by staked approval
// power, plus top N_pow by most recent proof of work, interleaved").
type ElectionConfig struct {
	NumDPoS uint32
	NumPoW  uint32
}

// Elect selects the schedule's member producers: the NumDPoS active
// producers with the greatest ApprovalPower, interleaved with the NumPoW
// active producers that mined most recently. A producer present in both
// groups (elected both for stake and for work) appears only once, in its
// higher-priority (DPoS) slot.
func Elect(producers []*Producer, cfg ElectionConfig) []xtypes.AccountName {
	active := make([]*Producer, 0, len(producers))
	for _, p := range producers {
		if p.Active {
			active = append(active, p)
		}
	}

	byStake := append([]*Producer(nil), active...)
	sort.SliceStable(byStake, func(i, j int) bool { return byStake[i].ApprovalPower > byStake[j].ApprovalPower })
	if uint32(len(byStake)) > cfg.NumDPoS {
		byStake = byStake[:cfg.NumDPoS]
	}
	chosen := make(map[xtypes.AccountName]bool, len(byStake))
	var dpos []xtypes.AccountName
	for _, p := range byStake {
		dpos = append(dpos, p.Owner)
		chosen[p.Owner] = true
	}

	byWork := append([]*Producer(nil), active...)
	sort.SliceStable(byWork, func(i, j int) bool { return byWork[i].LastWorkTime > byWork[j].LastWorkTime })
	var pow []xtypes.AccountName
	for _, p := range byWork {
		if uint32(len(pow)) >= cfg.NumPoW {
			break
		}
		if p.LastWorkTime == 0 || chosen[p.Owner] {
			continue
		}
		pow = append(pow, p.Owner)
		chosen[p.Owner] = true
	}

	return interleave(dpos, pow)
}

// interleave merges a and b alternately (a, b, a, b, ...), appending
// whichever runs longer once the other is exhausted.
func interleave(a, b []xtypes.AccountName) []xtypes.AccountName {
	out := make([]xtypes.AccountName, 0, len(a)+len(b))
	for i := 0; i < len(a) || i < len(b); i++ {
		if i < len(a) {
			out = append(out, a[i])
		}
		if i < len(b) {
			out = append(out, b[i])
		}
	}
	return out
}

// Shuffle reorders members by a Fisher-Yates pass driven by a pseudo-
// random stream seeded from seed (spec.md §4.8 "Shuffle": "producers are
// shuffled using a Fisher-Yates over a pseudo-random stream seeded by the
// current block id. Shuffle is deterministic given seed").
func Shuffle(members []xtypes.AccountName, seed xtypes.ID160) []xtypes.AccountName {
	out := append([]xtypes.AccountName(nil), members...)
	src := rand.New(rand.NewSource(seedInt64(seed)))
	for i := len(out) - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// seedInt64 folds an ID160's bytes into a single int64 seed.
func seedInt64(id xtypes.ID160) int64 {
	var v uint64
	for i, b := range id {
		v ^= uint64(b) << uint((i%8)*8)
	}
	return int64(v)
}

// BuildSchedule elects and shuffles a new schedule, bumping its version
// (spec.md §4.8, §4.7 "Producer/officer/executive/governance updates"
// daily recompute).
func BuildSchedule(producers []*Producer, cfg ElectionConfig, seed xtypes.ID160, prevVersion uint32) chainstate.ProducerSchedule {
	elected := Elect(producers, cfg)
	shuffled := Shuffle(elected, seed)
	return chainstate.ProducerSchedule{Version: prevVersion + 1, Producers: shuffled}
}

// SlotAtTime returns the slot index for t, given genesis and the chain's
// block interval (spec.md §4.8 "Slot clock").
func SlotAtTime(genesis, t xtypes.TimePoint, blockInterval xtypes.TimePoint) uint64 {
	if t <= genesis || blockInterval <= 0 {
		return 0
	}
	return uint64((t - genesis) / blockInterval)
}

// ScheduledProducer returns the producer assigned to slot under sched,
// given the chain's current absolute slot counter (spec.md §4.8
// "get_scheduled_producer(slot) = shuffled_producers[(current_aslot +
// slot) mod schedule_size]").
func ScheduledProducer(sched chainstate.ProducerSchedule, currentAslot, slot uint64) (xtypes.AccountName, bool) {
	n := len(sched.Producers)
	if n == 0 {
		return "", false
	}
	return sched.Producers[(currentAslot+slot)%uint64(n)], true
}
