package mission

// BuiltIn returns predefined routes usable without a route file.
func BuiltIn() map[string]Route {
	return map[string]Route{
		"perimeter": {
			Name:        "Perimeter",
			Description: "Box patrol around the launch point at constant altitude.",
			Loop:        true,
			Legs: []Leg{
				{Name: "ne corner", North: 200, East: 200, Up: 30},
				{Name: "nw corner", North: 200, East: -200, Up: 30},
				{Name: "sw corner", North: -200, East: -200, Up: 30},
				{Name: "se corner", North: -200, East: 200, Up: 30},
			},
		},
		"survey": {
			Name:        "Survey",
			Description: "Lawnmower sweep north of the launch point, then return.",
			Legs: []Leg{
				{Name: "pass 1 out", North: 300, East: 0, Up: 40},
				{Name: "shift 1", North: 300, East: 60, Up: 40},
				{Name: "pass 2 back", North: 50, East: 60, Up: 40},
				{Name: "shift 2", North: 50, East: 120, Up: 40},
				{Name: "pass 3 out", North: 300, East: 120, Up: 40},
				{Name: "home", North: 0, East: 0, Up: 40},
			},
		},
		"racetrack": {
			Name:        "Racetrack",
			Description: "Elongated loop for long-dwell coverage of a corridor.",
			Loop:        true,
			Legs: []Leg{
				{Name: "north leg", North: 500, East: 0, Up: 50},
				{Name: "north turn", North: 500, East: 80, Up: 50},
				{Name: "south leg", North: 0, East: 80, Up: 50},
				{Name: "south turn", North: 0, East: 0, Up: 50},
			},
		},
	}
}
