package transform

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// markdownToJSON parses structured generated text into records. The only
// supported schema is "emergency_contacts": named "## " sections holding
// "### " item blocks of bold key/value lines, producing contact and meeting
// location collections. Generated text is unreliable about heading depth, so
// the parser also accepts items promoted to "## " inside a known section.
// Blocks missing required fields are dropped with a warning rather than
// failing the run.
func markdownToJSON(input any, config map[string]any, opts Options) (any, error) {
	schema := stringOption(config, "schema")
	if schema == "" {
		return nil, fmt.Errorf("missing 'schema' in config")
	}

	source := input

	if path := stringOption(config, "source"); path != "" {
		resolved, err := extractPath(input, path)
		if err != nil {
			return nil, fmt.Errorf("resolving source %q: %w", path, err)
		}

		source = resolved
	}

	markdown, ok := source.(string)
	if !ok {
		return nil, fmt.Errorf("markdown input must be a string, got %T", source)
	}

	if schema != "emergency_contacts" {
		return nil, fmt.Errorf("unsupported schema: %q", schema)
	}

	return parseEmergencyContacts(markdown, opts), nil
}

func parseEmergencyContacts(markdown string, opts Options) map[string]any {
	contacts := make([]any, 0)
	locations := make([]any, 0)

	inContacts := false
	inLocations := false

	for _, section := range strings.Split(markdown, "## ") {
		section = strings.TrimSpace(section)
		if section == "" {
			continue
		}

		header, _, _ := strings.Cut(section, "\n")

		switch {
		case strings.HasPrefix(header, "Emergency Contacts Analysis"):
			inContacts, inLocations = true, false

			for _, block := range itemBlocks(section) {
				if contact := parseContactBlock(block, opts); contact != nil {
					contacts = append(contacts, contact)
				}
			}
		case strings.HasPrefix(header, "Meeting Locations"):
			inContacts, inLocations = false, true

			for _, block := range itemBlocks(section) {
				if location := parseLocationBlock(block, opts); location != nil {
					locations = append(locations, location)
				}
			}
		case inContacts && strings.Contains(section, "**Phone**"):
			// Item promoted to "## " depth.
			if contact := parseContactBlock(section, opts); contact != nil {
				contacts = append(contacts, contact)
			}
		case inLocations && (strings.Contains(section, "**Address**") || strings.Contains(section, "Meeting Location:")):
			if location := parseLocationBlock(section, opts); location != nil {
				locations = append(locations, location)
			}
		}
	}

	return map[string]any{
		"contacts":          contacts,
		"meeting_locations": locations,
	}
}

func itemBlocks(section string) []string {
	blocks := strings.Split(section, "### ")
	if len(blocks) <= 1 {
		return nil
	}

	return blocks[1:]
}

func parseContactBlock(block string, opts Options) map[string]any {
	name, _, _ := strings.Cut(block, "\n")
	name = strings.TrimSpace(name)

	phone := boldField(block, "Phone")
	category := boldField(block, "Category")
	priority := boldField(block, "Priority")
	reasoning := boldField(block, "Reasoning")

	if name == "" || phone == "" || category == "" || priority == "" || reasoning == "" {
		opts.Logger.Warn("dropping contact with missing required fields", "name", name)

		return nil
	}

	fitScore := 80
	if raw := boldField(block, "Fit Score"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			fitScore = parsed
		}
	}

	available := strings.EqualFold(boldField(block, "24/7 Available"), "yes")

	return map[string]any{
		"name":               name,
		"phone":              phone,
		"address":            boldField(block, "Address"),
		"website":            boldField(block, "Website"),
		"category":           category,
		"priority":           priority,
		"fit_score":          fitScore,
		"reasoning":          reasoning,
		"relevant_scenarios": splitList(boldField(block, "Relevant Scenarios")),
		"available_24hr":     available,
	}
}

var locationPriorityPattern = regexp.MustCompile(`(?i)(primary|secondary|tertiary)\s+meeting\s+location:?`)

func parseLocationBlock(block string, opts Options) map[string]any {
	firstLine, _, _ := strings.Cut(block, "\n")
	firstLine = strings.TrimSpace(firstLine)

	priority := "primary"
	name := firstLine

	if match := locationPriorityPattern.FindStringSubmatch(firstLine); match != nil {
		priority = strings.ToLower(match[1])
		name = strings.TrimSpace(locationPriorityPattern.ReplaceAllString(firstLine, ""))
	}

	address := boldField(block, "Address")
	reasoning := boldField(block, "Reasoning")

	if name == "" || address == "" || reasoning == "" {
		opts.Logger.Warn("dropping meeting location with missing required fields", "name", name)

		return nil
	}

	description := boldField(block, "Description")
	if description == "" {
		description = reasoning
	}

	practical := strings.ToLower(boldField(block, "Practical Details"))

	return map[string]any{
		"name":          name,
		"address":       address,
		"description":   description,
		"reasoning":     reasoning,
		"priority":      priority,
		"suitable_for":  splitList(boldField(block, "Suitable For")),
		"has_parking":   strings.Contains(practical, "parking"),
		"is_accessible": strings.Contains(practical, "accessible") || strings.Contains(practical, "ada"),
	}
}

// boldField extracts the value of a "**Field**: value" line.
func boldField(block, field string) string {
	pattern := regexp.MustCompile(`(?i)\*\*` + regexp.QuoteMeta(field) + `\*\*:?\s*(.+)`)

	match := pattern.FindStringSubmatch(block)
	if match == nil {
		return ""
	}

	value, _, _ := strings.Cut(match[1], "\n")

	return strings.TrimSpace(value)
}

func splitList(value string) []any {
	if value == "" {
		return []any{}
	}

	parts := strings.Split(value, ",")
	list := make([]any, 0, len(parts))

	for _, part := range parts {
		list = append(list, strings.TrimSpace(part))
	}

	return list
}
