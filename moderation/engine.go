package moderation

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/antonmedv/expr/vm"
	"github.com/tjcrane/roomwarden/config"
	"github.com/tjcrane/roomwarden/directory"
	"github.com/tjcrane/roomwarden/filter"
	"github.com/tjcrane/roomwarden/globals"
	"github.com/tjcrane/roomwarden/types"
)

const (
	actionCooldown = 3 * time.Second

	floodMessageNum = 5
	// floodPerMsgMin is the minimum time between messages for legitimate
	// spam; it distinguishes genuine flooding from lag-induced bursts.
	floodPerMsgMin   = 500 * time.Millisecond
	floodMessageTime = 6 * time.Second

	minCapsLength     = 18
	minCapsProportion = 0.8

	stretchSingleRun = 8
	stretchGroupRun  = 5

	zeroToleranceLimit = 4

	// decayHorizon is how far back timestamps survive a decay sweep.
	decayHorizon = 5 * time.Second
	// SweepPeriod is the default decay sweep interval.
	SweepPeriod = 30 * time.Minute
)

// moderation rule names as used in the per-room override map.
const (
	RuleBannedWords = "bannedwords"
	RuleFlooding    = "flooding"
	RuleCaps        = "caps"
	RuleStretching  = "stretching"
)

// Sender emits one outbound protocol command or chat line to a room or user.
type Sender interface {
	Say(target, text string)
}

// RoomRecord is the per-user, per-room scoring state.
type RoomRecord struct {
	// Times holds the timestamps of recent messages, ascending.
	Times []time.Time
	// Points is the current punishment rung, within [0,4].
	Points int
	// LastAction is when the last punitive action was taken, enforcing the
	// cooldown.
	LastAction time.Time
}

// UserRecord is the cross-room state of one user, created lazily on the
// first observed event and kept for the lifetime of the process.
type UserRecord struct {
	// ZeroTol counts serious infractions across all rooms; past the limit
	// every further infraction draws the strongest available punishment.
	ZeroTol  int
	LastSeen string
	SeenAt   time.Time

	Rooms map[string]*RoomRecord
}

// Engine converts chat events into at most one punitive action each,
// maintaining fairness via sliding windows, a punishment ladder, decay and
// cooldowns.
type Engine struct {
	mu sync.Mutex

	cfg      *config.Config
	settings *types.Settings
	users    *directory.Users
	send     Sender
	exempt   *vm.Program

	records map[string]*UserRecord
}

func NewEngine(cfg *config.Config, settings *types.Settings, users *directory.Users, send Sender) *Engine {
	prog, err := filter.Compile(cfg.ExemptFilter)
	if err != nil {
		globals.AppLogger.Error("could not compile exempt filter, ignoring it", "error", err)
	}
	return &Engine{
		cfg:      cfg,
		settings: settings,
		users:    users,
		send:     send,
		exempt:   prog,
		records:  make(map[string]*UserRecord),
	}
}

// Score evaluates one chat message and takes at most one punitive action.
// Exempt users are not recorded at all.
func (e *Engine) Score(user *directory.User, roomId, text string, now time.Time) {
	msg := normalize(text)
	if e.isExempt(user, roomId, msg) {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.record(user.Id, now)
	rd := rec.Rooms[roomId]
	if rd == nil {
		rd = &RoomRecord{}
		rec.Rooms[roomId] = rd
	}
	rd.Times = append(rd.Times, now)

	severity, reason := e.evaluate(roomId, msg, rd, now)
	if severity == 0 {
		return
	}
	if now.Sub(rd.LastAction) < actionCooldown {
		return
	}

	// Escalate one rung when the offense matches or exceeds the history,
	// otherwise jump straight to the offense's own rung.
	var action string
	if rd.Points >= severity && rd.Points < 4 {
		rd.Points++
		action = e.settings.Action(rd.Points)
	} else {
		action = e.settings.Action(severity)
		rd.Points = severity
	}
	if e.cfg.IsPrivateRoom(roomId) && action == "warn" {
		// can't warn in private rooms
		action = "mute"
	}
	if rd.Points >= 4 && !e.users.Self().HasRank(roomId, "@") {
		// the ladder's top rung needs @; fall back to the long timed mute
		action = "hourmute"
	}
	if rec.ZeroTol > zeroToleranceLimit {
		reason = "zero tolerance user"
		if e.users.Self().HasRank(roomId, "@") {
			action = "roomban"
		} else {
			action = "hourmute"
		}
	}
	if rd.Points > 1 {
		// getting muted or higher raises the zero tolerance level, warns do not
		rec.ZeroTol++
	}
	rd.LastAction = now
	e.send.Say(roomId, "/"+action+" "+user.Id+", Automated response: "+reason)
}

// evaluate runs the four rules in fixed order and returns the maximum
// severity with the reason of whichever rule most recently raised it.
func (e *Engine) evaluate(roomId, msg string, rd *RoomRecord, now time.Time) (int, string) {
	severity := 0
	reason := ""

	if severity < 2 && e.settings.RuleEnabled(roomId, RuleBannedWords) {
		lower := strings.ToLower(msg)
		for _, phrase := range e.settings.PhrasesFor(roomId) {
			if strings.Contains(lower, strings.ToLower(phrase)) {
				severity = 2
				reason = "your message contained a banned phrase"
				break
			}
		}
	}
	if severity < 2 && e.settings.RuleEnabled(roomId, RuleFlooding) {
		if n := len(rd.Times); n >= floodMessageNum {
			span := now.Sub(rd.Times[n-floodMessageNum])
			if span < floodMessageTime && span > floodPerMsgMin*floodMessageNum {
				severity = 2
				reason = "flooding"
			}
		}
	}
	if severity < 1 && e.settings.RuleEnabled(roomId, RuleCaps) {
		if isCapsAbuse(msg) {
			severity = 1
			reason = "caps"
		}
	}
	if severity < 1 && e.settings.RuleEnabled(roomId, RuleStretching) {
		if isStretched(msg) {
			severity = 1
			reason = "stretching"
		}
	}
	return severity, reason
}

func (e *Engine) isExempt(user *directory.User, roomId, msg string) bool {
	if !e.cfg.AllowMute {
		return true
	}
	// without at least % the bot could not act anyway
	if !e.users.Self().HasRank(roomId, "%") {
		return true
	}
	if e.cfg.IsWhitelisted(user.Id) {
		return true
	}
	if e.exempt != nil {
		env := filter.Env{
			RoomId:     roomId,
			UserId:     user.Id,
			UserName:   user.Name,
			GlobalRank: user.Global,
			RoomRank:   user.Ranks[roomId],
			Text:       msg,
		}
		if filter.Run(e.exempt, env) {
			return true
		}
	}
	return false
}

// DecaySweep prunes every sliding window to the retention horizon and steps
// accumulated points down by one. Room records whose window empties are
// dropped; this is the only mechanism by which accumulated severity fades.
func (e *Engine) DecaySweep(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	users, rooms := 0, 0
	for _, rec := range e.records {
		users++
		for roomId, rd := range rec.Rooms {
			kept := rd.Times[:0]
			for _, t := range rd.Times {
				if now.Sub(t) < decayHorizon {
					kept = append(kept, t)
				}
			}
			sort.Slice(kept, func(i, j int) bool { return kept[i].Before(kept[j]) })
			rd.Times = kept
			if len(rd.Times) == 0 {
				delete(rec.Rooms, roomId)
				continue
			}
			rooms++
			if rd.Points > 0 && rd.Points < 4 {
				rd.Points--
			}
		}
	}
	globals.AppLogger.Debug("decay sweep done", "users", users, "activeRooms", rooms)
}

// record returns the user's cross-room record, creating it on first sight.
// Callers must hold e.mu.
func (e *Engine) record(userId string, now time.Time) *UserRecord {
	rec, ok := e.records[userId]
	if !ok {
		rec = &UserRecord{
			SeenAt: now,
			Rooms:  make(map[string]*RoomRecord),
		}
		e.records[userId] = rec
	}
	return rec
}

// normalize strips null and zero-width characters and collapses runs of
// spaces, so that padding a stretched word with invisible characters does not
// evade the stretching rule.
func normalize(text string) string {
	var b strings.Builder
	space := false
	for _, r := range text {
		switch {
		case r == ' ':
			space = true
		case r == 0x0000 || (r >= 0x200B && r <= 0x200F):
			// invisible, dropped outright
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	return b.String()
}
