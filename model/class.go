package model

// Class identifies a TF2 player class. The zero value covers the brief
// window before a player has picked a class. Ordinals match the class
// numbers the engine uses in game events, so ClassCount-sized arrays
// can be indexed with a Class directly.
type Class uint8

const (
	ClassOther Class = iota
	ClassScout
	ClassSniper
	ClassSoldier
	ClassDemoman
	ClassMedic
	ClassHeavy
	ClassPyro
	ClassSpy
	ClassEngineer

	ClassCount = 10
)

// Classes lists the nine playable classes, excluding ClassOther.
var Classes = [9]Class{
	ClassScout,
	ClassSniper,
	ClassSoldier,
	ClassDemoman,
	ClassMedic,
	ClassHeavy,
	ClassPyro,
	ClassSpy,
	ClassEngineer,
}

var classNames = [ClassCount]string{
	"Other",
	"Scout",
	"Sniper",
	"Soldier",
	"Demoman",
	"Medic",
	"Heavy",
	"Pyro",
	"Spy",
	"Engineer",
}

func (c Class) String() string {
	if int(c) >= len(classNames) {
		return "Other"
	}
	return classNames[c]
}

// Team identifies the side a player occupies at a point in time.
type Team uint8

const (
	TeamUnassigned Team = iota
	TeamSpectator
	TeamRed
	TeamBlu

	TeamCount = 4
)

var teamNames = [TeamCount]string{
	"Unassigned",
	"Spectator",
	"Red",
	"Blu",
}

func (t Team) String() string {
	if int(t) >= len(teamNames) {
		return "Unassigned"
	}
	return teamNames[t]
}
