package core

import "strings"

// Channels every connection may use without authorization.
const (
	ChannelGlobal = "global"
	ChannelTrade  = "trade"
	ChannelHelp   = "help"
)

const (
	districtPrefix = "district:"
	crewPrefix     = "crew:"
)

// DistrictChannel returns the channel name bound to a district.
func DistrictChannel(districtID string) string {
	return districtPrefix + districtID
}

// CrewChannel returns the channel name bound to a crew.
func CrewChannel(crewID string) string {
	return crewPrefix + crewID
}

// canJoin reports whether the connection may use the channel. District
// and crew channels are tied to the connection's current identity; any
// other shape is rejected. Caller holds the hub lock because district
// and crew identity are mutable.
func canJoin(c *Conn, channel string) bool {
	switch channel {
	case ChannelGlobal, ChannelTrade, ChannelHelp:
		return true
	}
	if id, ok := strings.CutPrefix(channel, districtPrefix); ok {
		return id != "" && c.DistrictID == id
	}
	if id, ok := strings.CutPrefix(channel, crewPrefix); ok {
		return id != "" && c.CrewID == id
	}
	return false
}

// channelIndex is the bidirectional channel/member index. Both sides
// (members here, the channels set on each Conn) mutate together under
// the hub's membership lock.
type channelIndex struct {
	members map[string]map[string]*Conn
}

func newChannelIndex() *channelIndex {
	return &channelIndex{members: make(map[string]map[string]*Conn)}
}

// join adds the connection to a channel. Authorization is the caller's
// responsibility, not the index's.
func (x *channelIndex) join(c *Conn, channel string) {
	set := x.members[channel]
	if set == nil {
		set = make(map[string]*Conn)
		x.members[channel] = set
	}
	set[c.UserID] = c
	c.channels[channel] = struct{}{}
}

// leave removes the connection from a channel. Global membership cannot
// be revoked while connected.
func (x *channelIndex) leave(c *Conn, channel string) {
	if channel == ChannelGlobal {
		return
	}
	x.drop(c, channel)
}

// leaveAll unwinds every membership, global included. Disconnect path
// only.
func (x *channelIndex) leaveAll(c *Conn) {
	for channel := range c.channels {
		x.drop(c, channel)
	}
}

func (x *channelIndex) drop(c *Conn, channel string) {
	if set, ok := x.members[channel]; ok {
		delete(set, c.UserID)
		if len(set) == 0 {
			delete(x.members, channel)
		}
	}
	delete(c.channels, channel)
}

// membersExcept snapshots a channel's members, skipping excludeUserID
// when non-empty.
func (x *channelIndex) membersExcept(channel, excludeUserID string) []*Conn {
	set := x.members[channel]
	if len(set) == 0 {
		return nil
	}
	conns := make([]*Conn, 0, len(set))
	for userID, c := range set {
		if excludeUserID != "" && userID == excludeUserID {
			continue
		}
		conns = append(conns, c)
	}
	return conns
}

func (x *channelIndex) count(channel string) int {
	return len(x.members[channel])
}
