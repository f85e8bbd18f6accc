package engine

import "mailrules/internal/rules"

// Plan turns the matched rule conditions of one message into a single
// ordered action list. Actions are concatenated in document order, exact
// duplicates collapse to their first occurrence, and conflicts resolve
// deterministically:
//   - MarkRead vs MarkUnread: the later occurrence wins.
//   - Archive vs MoveToFolder: MoveToFolder wins regardless of order.
//   - Two MoveToFolder targets: the later one wins.
//
// Planning the same input twice always yields the same output.
func Plan(matched []rules.RuleCondition) []rules.Action {
	var plan []rules.Action
	for _, rc := range matched {
		for _, action := range rc.Actions {
			plan = appendAction(plan, action)
		}
	}
	return plan
}

func appendAction(plan []rules.Action, next rules.Action) []rules.Action {
	for _, existing := range plan {
		if existing == next {
			return plan
		}
	}

	// Archive never displaces an already planned MoveToFolder.
	if next.Kind == rules.Archive && containsKind(plan, rules.MoveToFolder) {
		return plan
	}

	plan = removeConflicting(plan, next)
	return append(plan, next)
}

func removeConflicting(plan []rules.Action, next rules.Action) []rules.Action {
	out := plan[:0]
	for _, existing := range plan {
		if conflicts(existing, next) {
			continue
		}
		out = append(out, existing)
	}
	return out
}

func conflicts(existing, next rules.Action) bool {
	switch next.Kind {
	case rules.MarkRead:
		return existing.Kind == rules.MarkUnread
	case rules.MarkUnread:
		return existing.Kind == rules.MarkRead
	case rules.MoveToFolder:
		return existing.Kind == rules.Archive || existing.Kind == rules.MoveToFolder
	default:
		return false
	}
}

func containsKind(plan []rules.Action, kind rules.ActionKind) bool {
	for _, a := range plan {
		if a.Kind == kind {
			return true
		}
	}
	return false
}
