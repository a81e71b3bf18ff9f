package gateway

import "fmt"

// Room names are pure functions of the identity, so broadcast addressing is
// deterministic across restarts.

func SiteRoom(siteID string) string {
	return fmt.Sprintf("site:%s", siteID)
}

func SiteIPRoom(siteID, ip string) string {
	return fmt.Sprintf("site:%s:ip:%s", siteID, ip)
}

// RoomSet is a pub/sub mapping from room name to the connections in it.
// Membership changes are the only mutation; broadcast is read-only fan-out.
type RoomSet struct {
	rooms map[string]map[string]Conn
}

func NewRoomSet() *RoomSet {
	return &RoomSet{rooms: make(map[string]map[string]Conn)}
}

func (rs *RoomSet) Join(room string, conn Conn) {
	members, ok := rs.rooms[room]
	if !ok {
		members = make(map[string]Conn)
		rs.rooms[room] = members
	}
	members[conn.ID()] = conn
}

func (rs *RoomSet) Leave(room, connectionID string) {
	members, ok := rs.rooms[room]
	if !ok {
		return
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(rs.rooms, room)
	}
}

// Broadcast delivers msg to every member of the room and returns the number
// of connections it reached. An unknown room reaches zero connections.
func (rs *RoomSet) Broadcast(room string, msg Message) int {
	delivered := 0
	for _, conn := range rs.rooms[room] {
		if conn.Send(msg) {
			delivered++
		}
	}
	return delivered
}

func (rs *RoomSet) Size(room string) int {
	return len(rs.rooms[room])
}
