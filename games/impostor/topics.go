/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package impostor

// DefaultTopics is used when no topic list is configured.
var DefaultTopics = []string{
	// Europe
	"Germany", "England", "France", "Italy", "Spain", "Netherlands", "Switzerland",
	"Sweden", "Norway", "Belgium", "Denmark", "Austria", "Finland", "Greece",
	"Hungary", "Portugal", "Czech Republic", "Poland", "Ireland", "Russia",

	// Asia
	"China", "Japan", "India", "South Korea", "Indonesia", "Thailand", "Malaysia",
	"Singapore", "Philippines", "Vietnam", "Bangladesh", "Pakistan", "Turkey",

	// Americas
	"United States", "Canada", "Mexico", "Brazil", "Argentina",
	"Chile", "Colombia", "Cuba", "Venezuela",

	// Africa and the Middle East
	"South Africa", "Egypt", "Nigeria", "Morocco", "Algeria", "Saudi Arabia",
	"United Arab Emirates", "Israel", "Iran", "Iraq",

	// Oceania
	"Australia", "New Zealand",
}
