package ws

import "sync"

// RoomRouter tracks which connections are watching which room and fans
// events out to them. Subscription is connection-scoped: when a connection
// dies, UnsubscribeAll clears every room it was in.
type RoomRouter struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

func NewRoomRouter() *RoomRouter {
	return &RoomRouter{rooms: make(map[string]map[*Client]struct{})}
}

// Subscribe adds c to roomID's broadcast set.
func (rt *RoomRouter) Subscribe(roomID string, c *Client) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.rooms[roomID] == nil {
		rt.rooms[roomID] = make(map[*Client]struct{})
	}
	rt.rooms[roomID][c] = struct{}{}
}

// Unsubscribe removes c from roomID's broadcast set.
func (rt *RoomRouter) Unsubscribe(roomID string, c *Client) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.removeLocked(roomID, c)
}

// UnsubscribeAll removes c from every room and returns the rooms it was in.
func (rt *RoomRouter) UnsubscribeAll(c *Client) []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	var roomIDs []string
	for roomID, members := range rt.rooms {
		if _, ok := members[c]; ok {
			roomIDs = append(roomIDs, roomID)
			rt.removeLocked(roomID, c)
		}
	}
	return roomIDs
}

// Members returns the connections currently subscribed to roomID.
func (rt *RoomRouter) Members(roomID string) []*Client {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	members := make([]*Client, 0, len(rt.rooms[roomID]))
	for c := range rt.rooms[roomID] {
		members = append(members, c)
	}
	return members
}

// Broadcast queues msg on every connection subscribed to roomID.
func (rt *RoomRouter) Broadcast(roomID string, msg []byte) {
	for _, c := range rt.Members(roomID) {
		c.enqueue(msg)
	}
}

func (rt *RoomRouter) removeLocked(roomID string, c *Client) {
	members, ok := rt.rooms[roomID]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(rt.rooms, roomID)
	}
}
