package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/undercity-games/presence-server/internal/log"
	"github.com/undercity-games/presence-server/internal/metrics"
	"github.com/undercity-games/presence-server/internal/proto"
	"github.com/undercity-games/presence-server/internal/store"
)

// Mirror receives presence transitions for out-of-process consumers.
// Implementations absorb their own errors; a nil mirror disables
// mirroring.
type Mirror interface {
	PlayerOnline(p *store.Player)
	PlayerOffline(userID string)
	DistrictChanged(userID, districtID string)
	CrewChanged(userID, crewID string)
}

// HubOptions wires the hub's collaborators. ChatStore and Directory are
// required for a serving hub; tests inject fakes. The friend graph is
// not here: the transport snapshots friends during the handshake and
// hands them to Connect.
type HubOptions struct {
	ChatStore store.ChatStore
	Directory store.PlayerDirectory
	Logger    *zerolog.Logger
	Metrics   *metrics.Metrics
	Mirror    Mirror

	// HistoryDefault and HistoryMax bound chat history pages; zero
	// values fall back to 50 and 100.
	HistoryDefault int
	HistoryMax     int
}

// Hub owns every shared structure of the realtime layer: the connection
// registry, the channel index, and the presence rosters. One RW lock
// guards them together so each multi-step transition runs as a single
// critical section; collaborator calls (chat save, friend load,
// directory lookups) always happen outside it.
type Hub struct {
	log     *zerolog.Logger
	chats   store.ChatStore
	dir     store.PlayerDirectory
	metrics *metrics.Metrics
	mirror  Mirror

	historyDefault int
	historyMax     int

	mu       sync.RWMutex
	registry *registry
	channels *channelIndex
	presence *rosters
}

// NewHub creates a hub with empty registries.
func NewHub(opts HubOptions) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	historyDefault := opts.HistoryDefault
	if historyDefault <= 0 {
		historyDefault = 50
	}
	historyMax := opts.HistoryMax
	if historyMax <= 0 {
		historyMax = 100
	}
	return &Hub{
		log:            logger,
		chats:          opts.ChatStore,
		dir:            opts.Directory,
		metrics:        opts.Metrics,
		mirror:         opts.Mirror,
		historyDefault: historyDefault,
		historyMax:     historyMax,
		registry:       newRegistry(),
		channels:       newChannelIndex(),
		presence:       newRosters(),
	}
}

// Connect registers an authenticated connection. The caller has already
// verified the token, loaded the player record, and snapshotted the
// friend list; Connect itself never blocks on a collaborator.
//
// The returned Conn is the handle for HandleFrame and Disconnect. A
// previous connection for the same user is superseded: its memberships
// are unwound silently inside the same critical section and its socket
// is closed with CloseSuperseded.
func (h *Hub) Connect(sock Socket, player *store.Player, friends []string) *Conn {
	c := newConn(sock, player, friends)

	h.mu.Lock()
	replaced := h.registry.register(c)

	sameCrew := false
	if replaced != nil {
		sameCrew = replaced.CrewID != "" && replaced.CrewID == c.CrewID
		h.unwindLocked(replaced)
	}

	h.channels.join(c, ChannelGlobal)

	if c.DistrictID != "" {
		h.presence.districtJoin(c.DistrictID, c.UserID)
		h.channels.join(c, DistrictChannel(c.DistrictID))
	}

	var crewCount int
	var crewMates []*Conn
	if c.CrewID != "" {
		crewCount = h.presence.crewJoin(c.CrewID, c.UserID)
		h.channels.join(c, CrewChannel(c.CrewID))
		if !sameCrew {
			crewMates = h.channels.membersExcept(CrewChannel(c.CrewID), c.UserID)
		}
	}

	var onlineFriends []*Conn
	if replaced == nil {
		onlineFriends = h.onlineFriendsLocked(c)
	}

	online := h.registry.count()
	channels := c.channelList()
	h.mu.Unlock()

	if replaced != nil {
		replaced.sock.Close(proto.CloseSuperseded, "session superseded")
	}

	h.deliverOne(c, proto.NewEvent(proto.EventConnected, proto.ConnectedData{
		UserID:      c.UserID,
		Username:    c.Username,
		OnlineCount: online,
		Channels:    channels,
	}))

	if len(crewMates) > 0 {
		h.deliver(crewMates, proto.NewEvent(proto.EventCrewMemberOnline, proto.CrewPresenceData{
			UserID:      c.UserID,
			Username:    c.Username,
			CrewID:      c.CrewID,
			OnlineCount: crewCount,
		}))
	}

	if len(onlineFriends) > 0 {
		h.deliver(onlineFriends, proto.NewEvent(proto.EventFriendOnline, proto.FriendPresenceData{
			UserID:   c.UserID,
			Username: c.Username,
		}))
	}

	h.BroadcastAll(proto.NewEvent(proto.EventOnlineCount, proto.OnlineCountData{Count: online}))

	h.metrics.ConnOpened()
	if h.mirror != nil {
		h.mirror.PlayerOnline(player)
	}

	h.log.Info().
		Str("user", c.UserID).
		Str("session", c.SessionID).
		Str("district", c.DistrictID).
		Int("online", online).
		Msg("connected")

	return c
}

// Disconnect runs the departure sequence for a connection: registry
// removal, channel removals, district roster, crew roster with its
// offline event, friend notifications, and cache discard. It no-ops
// when the registry no longer maps the user to this exact Conn, which
// makes it idempotent and safe to race with replacement.
func (h *Hub) Disconnect(c *Conn) {
	h.mu.Lock()
	if !h.registry.unregister(c) {
		h.mu.Unlock()
		return
	}

	h.channels.leaveAll(c)

	if c.DistrictID != "" {
		h.presence.districtLeave(c.DistrictID, c.UserID)
	}

	var crewCount int
	var crewMates []*Conn
	if c.CrewID != "" {
		crewCount = h.presence.crewLeave(c.CrewID, c.UserID)
		crewMates = h.channels.membersExcept(CrewChannel(c.CrewID), c.UserID)
	}

	onlineFriends := h.onlineFriendsLocked(c)
	c.friends = nil

	online := h.registry.count()
	h.mu.Unlock()

	if len(crewMates) > 0 {
		h.deliver(crewMates, proto.NewEvent(proto.EventCrewMemberOffline, proto.CrewPresenceData{
			UserID:      c.UserID,
			Username:    c.Username,
			CrewID:      c.CrewID,
			OnlineCount: crewCount,
		}))
	}

	if len(onlineFriends) > 0 {
		h.deliver(onlineFriends, proto.NewEvent(proto.EventFriendOffline, proto.FriendPresenceData{
			UserID:   c.UserID,
			Username: c.Username,
		}))
	}

	h.BroadcastAll(proto.NewEvent(proto.EventOnlineCount, proto.OnlineCountData{Count: online}))

	h.metrics.ConnClosed()
	if h.mirror != nil {
		h.mirror.PlayerOffline(c.UserID)
	}

	h.log.Info().
		Str("user", c.UserID).
		Str("session", c.SessionID).
		Int("online", online).
		Msg("disconnected")
}

// SetDistrict moves an online player to another district: the old
// roster and district channel are left, the new ones joined, all in one
// critical section. District moves emit no events.
func (h *Hub) SetDistrict(userID, districtID string) error {
	h.mu.Lock()
	c, ok := h.registry.get(userID)
	if !ok {
		h.mu.Unlock()
		return ErrNotOnline
	}
	if c.DistrictID == districtID {
		h.mu.Unlock()
		return nil
	}

	if c.DistrictID != "" {
		h.channels.leave(c, DistrictChannel(c.DistrictID))
		h.presence.districtLeave(c.DistrictID, c.UserID)
	}
	c.DistrictID = districtID
	if districtID != "" {
		h.presence.districtJoin(districtID, c.UserID)
		h.channels.join(c, DistrictChannel(districtID))
	}
	h.mu.Unlock()

	if h.mirror != nil {
		h.mirror.DistrictChanged(userID, districtID)
	}

	h.log.Debug().Str("user", userID).Str("district", districtID).Msg("district changed")
	return nil
}

// SetCrew moves an online player between crews. The old crew sees
// crew:member_offline, the new one crew:member_online, with counts
// taken after each roster mutation. An empty crewID leaves crew play
// entirely.
func (h *Hub) SetCrew(userID, crewID, crewTag string) error {
	h.mu.Lock()
	c, ok := h.registry.get(userID)
	if !ok {
		h.mu.Unlock()
		return ErrNotOnline
	}
	if c.CrewID == crewID {
		c.CrewTag = crewTag
		h.mu.Unlock()
		return nil
	}

	oldCrew := c.CrewID
	var oldCount int
	var oldMates []*Conn
	if oldCrew != "" {
		h.channels.leave(c, CrewChannel(oldCrew))
		oldCount = h.presence.crewLeave(oldCrew, c.UserID)
		oldMates = h.channels.membersExcept(CrewChannel(oldCrew), c.UserID)
	}

	c.CrewID = crewID
	c.CrewTag = crewTag

	var newCount int
	var newMates []*Conn
	if crewID != "" {
		newCount = h.presence.crewJoin(crewID, c.UserID)
		h.channels.join(c, CrewChannel(crewID))
		newMates = h.channels.membersExcept(CrewChannel(crewID), c.UserID)
	}
	h.mu.Unlock()

	if len(oldMates) > 0 {
		h.deliver(oldMates, proto.NewEvent(proto.EventCrewMemberOffline, proto.CrewPresenceData{
			UserID:      c.UserID,
			Username:    c.Username,
			CrewID:      oldCrew,
			OnlineCount: oldCount,
		}))
	}
	if len(newMates) > 0 {
		h.deliver(newMates, proto.NewEvent(proto.EventCrewMemberOnline, proto.CrewPresenceData{
			UserID:      c.UserID,
			Username:    c.Username,
			CrewID:      crewID,
			OnlineCount: newCount,
		}))
	}

	if h.mirror != nil {
		h.mirror.CrewChanged(userID, crewID)
	}

	h.log.Debug().Str("user", userID).Str("crew", crewID).Msg("crew changed")
	return nil
}

// ClearCrew removes an online player from their crew.
func (h *Hub) ClearCrew(userID string) error {
	return h.SetCrew(userID, "", "")
}

// SendHistory unicasts a chat:history page for one channel. The store
// read happens before any event is built; limit is clamped to the
// configured page bounds.
func (h *Hub) SendHistory(ctx context.Context, c *Conn, channel string, limit int) error {
	if limit <= 0 {
		limit = h.historyDefault
	}
	if limit > h.historyMax {
		limit = h.historyMax
	}

	msgs, err := h.chats.RecentMessages(ctx, channel, limit)
	if err != nil {
		return err
	}
	if msgs == nil {
		msgs = []*store.ChatMessage{}
	}

	h.deliverOne(c, proto.NewEvent(proto.EventChatHistory, proto.ChatHistoryData{
		Channel:  channel,
		Messages: msgs,
	}))
	return nil
}

// OnlineCount returns the number of live connections.
func (h *Hub) OnlineCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.registry.count()
}

// IsOnline reports whether the user has a live connection.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.registry.isOnline(userID)
}

// DistrictRoster lists the user ids present in a district, sorted.
func (h *Hub) DistrictRoster(districtID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.presence.districtMembers(districtID)
}

// CrewRoster lists the user ids of a crew's online members, sorted.
func (h *Hub) CrewRoster(crewID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.presence.crewMembers(crewID)
}

// ChannelsOf lists the channels a user is subscribed to.
func (h *Hub) ChannelsOf(userID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.registry.get(userID)
	if !ok {
		return nil
	}
	return c.channelList()
}

// connsSnapshot copies the live connection list for lock-free
// iteration.
func (h *Hub) connsSnapshot() []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.registry.all()
}

// unwindLocked silently removes a superseded connection's memberships.
// No offline events fire: the user never left, their socket did.
func (h *Hub) unwindLocked(c *Conn) {
	h.channels.leaveAll(c)
	if c.DistrictID != "" {
		h.presence.districtLeave(c.DistrictID, c.UserID)
	}
	if c.CrewID != "" {
		h.presence.crewLeave(c.CrewID, c.UserID)
	}
	c.friends = nil
}

// onlineFriendsLocked resolves the connection's friend snapshot to live
// connections. Caller holds the hub lock.
func (h *Hub) onlineFriendsLocked(c *Conn) []*Conn {
	var online []*Conn
	for _, friendID := range c.friends {
		if fc, ok := h.registry.get(friendID); ok {
			online = append(online, fc)
		}
	}
	return online
}
