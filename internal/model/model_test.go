package model

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to RegistrationStatus
		want     bool
	}{
		{StatusRegistered, StatusAttended, true},
		{StatusAttended, StatusLeft, true},
		{StatusRegistered, StatusCancelled, true},
		{StatusAttended, StatusCancelled, true},
		{StatusRegistered, StatusLeft, false},
		{StatusAttended, StatusRegistered, false},
		{StatusLeft, StatusAttended, false},
		{StatusLeft, StatusCancelled, false},
		{StatusCancelled, StatusRegistered, false},
		{StatusCancelled, StatusAttended, false},
		{StatusRegistered, StatusRegistered, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestActorCanManage(t *testing.T) {
	e := &Event{ID: "e1", OrganizerID: "org-1"}

	if !(Actor{UserID: "org-1", Role: RoleOrganizer}).CanManage(e) {
		t.Error("owner should manage its event")
	}
	if (Actor{UserID: "org-2", Role: RoleOrganizer}).CanManage(e) {
		t.Error("other organizer must not manage the event")
	}
	if !(Actor{UserID: "adm", Role: RoleAdmin}).CanManage(e) {
		t.Error("admin should manage any event")
	}
	if (Actor{Role: RoleOrganizer}).CanManage(&Event{}) {
		t.Error("empty ids must not match")
	}
}

func TestNewEventViewSeats(t *testing.T) {
	tests := []struct {
		capacity, registered, left int
		full                       bool
	}{
		{capacity: 5, registered: 2, left: 3},
		{capacity: 2, registered: 2, left: 0, full: true},
		{capacity: 2, registered: 3, left: 0, full: true},
	}
	for _, tt := range tests {
		v := NewEventView(Event{Capacity: tt.capacity}, tt.registered)
		if v.RegisteredCount != tt.registered || v.SeatsLeft != tt.left || v.Full != tt.full {
			t.Errorf("NewEventView(%d, %d) = %+v", tt.capacity, tt.registered, v)
		}
	}
}

func TestUpdateEventRequestApply(t *testing.T) {
	title := "  Go Meetup "
	capacity := 40
	e := &Event{Title: "old", Capacity: 10, Location: "Hall A"}

	p := UpdateEventRequest{Title: &title, Capacity: &capacity}
	if p.Empty() {
		t.Fatal("patch should not be empty")
	}
	p.Apply(e)

	if e.Title != "Go Meetup" || e.Capacity != 40 || e.Location != "Hall A" {
		t.Fatalf("unexpected event after apply: %+v", e)
	}
}
