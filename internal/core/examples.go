package core

// ExamplePrompts are sample themes offered next to the theme input.
var ExamplePrompts = []string{
	"Generate data about a hospital's patients. Include an identifier, blood type, name, nationality and illness.",
	"Generate data about real basketball players. Give their name, age, date of birth, height and a short description.",
	"Generate data about a company. Give the employee names, department, salary and hire date, with salary consistent with the other fields.",
	"Generate current world news. Include the headline, date and a short summary.",
	"List the best places to visit in Budapest. Give the place name, location, reference year and a short history.",
}
