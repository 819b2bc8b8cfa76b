package cache

import (
	"context"
	"sort"

	"github.com/tallyhq/tally/internal/calculator"
	"github.com/tallyhq/tally/internal/models"
)

// buildSnapshot aggregates a user's balances from both graphs.
//
// Friend links contribute one signed amount per counterparty. Group
// memberships are held against the pool, so per-counterparty attribution
// comes from the group's minimum-cash-flow settlement: the instructions
// touching the user say who would pay whom. Amounts against confirmed
// friends are merged into the friend's single number; amounts against
// co-members who are not friends stay as per-group details, never merged,
// which is also what prevents double counting between the two graphs.
func (m *Manager) buildSnapshot(ctx context.Context, userID string) (*models.BalanceSnapshot, error) {
	links, err := m.store.ListFriendLinks(ctx, userID)
	if err != nil {
		return nil, err
	}
	groups, err := m.store.ListGroupsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	friendAmounts := make(map[string]int64)
	acceptedFriend := make(map[string]bool)
	for _, link := range links {
		other := link.Other(userID)
		if link.Status == models.FriendAccepted {
			acceptedFriend[other] = true
			friendAmounts[other] += link.BalanceFor(userID)
		} else if link.Balance != 0 {
			friendAmounts[other] += link.BalanceFor(userID)
		}
	}

	type groupDetail struct {
		counterparty string
		amount       int64
		groupID      string
		groupName    string
	}
	var groupDetails []groupDetail

	for _, group := range groups {
		balances := make(map[string]int64, len(group.Members))
		for _, member := range group.Members {
			balances[member.UserID] = member.Balance
		}
		instructions, err := calculator.MinCashFlow(balances)
		if err != nil {
			return nil, err
		}
		for _, ins := range instructions {
			var counterparty string
			var amount int64
			switch userID {
			case ins.To:
				counterparty, amount = ins.From, ins.Amount
			case ins.From:
				counterparty, amount = ins.To, -ins.Amount
			default:
				continue
			}
			if acceptedFriend[counterparty] {
				friendAmounts[counterparty] += amount
			} else {
				groupDetails = append(groupDetails, groupDetail{
					counterparty: counterparty,
					amount:       amount,
					groupID:      group.ID,
					groupName:    group.Name,
				})
			}
		}
	}

	ids := make([]string, 0, len(friendAmounts)+len(groupDetails))
	for id := range friendAmounts {
		ids = append(ids, id)
	}
	for _, d := range groupDetails {
		ids = append(ids, d.counterparty)
	}
	users, err := m.store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	nameFor := func(id string) string {
		if u, ok := users[id]; ok {
			return u.DisplayName
		}
		return id
	}

	snap := &models.BalanceSnapshot{UserID: userID, ComputedAt: timeNow().Unix()}

	friendIDs := make([]string, 0, len(friendAmounts))
	for id := range friendAmounts {
		friendIDs = append(friendIDs, id)
	}
	sort.Strings(friendIDs)
	for _, id := range friendIDs {
		snap.Details = append(snap.Details, models.BalanceDetail{
			CounterpartyID: id,
			Name:           nameFor(id),
			Amount:         friendAmounts[id],
			Source:         models.SourceFriend,
		})
	}

	sort.Slice(groupDetails, func(i, j int) bool {
		if groupDetails[i].groupID != groupDetails[j].groupID {
			return groupDetails[i].groupID < groupDetails[j].groupID
		}
		return groupDetails[i].counterparty < groupDetails[j].counterparty
	})
	for _, d := range groupDetails {
		snap.Details = append(snap.Details, models.BalanceDetail{
			CounterpartyID: d.counterparty,
			Name:           nameFor(d.counterparty),
			Amount:         d.amount,
			Source:         models.SourceGroup,
			GroupID:        d.groupID,
			GroupName:      d.groupName,
		})
	}

	for _, d := range snap.Details {
		if d.Amount > 0 {
			snap.TotalOwed += d.Amount
		} else {
			snap.TotalOwing += -d.Amount
		}
	}
	snap.NetBalance = snap.TotalOwed - snap.TotalOwing
	return snap, nil
}

// SortOrder selects how display details are ordered.
type SortOrder string

const (
	SortByAmount SortOrder = "amount"
	SortByName   SortOrder = "name"
)

// DisplayConfig controls the FormatForDisplay projection.
type DisplayConfig struct {
	// ShowZeroBalances keeps settled counterparties in the list. Amounts
	// are integer minor units, so exactly zero is the only near-zero value
	// a detail can carry.
	ShowZeroBalances bool

	// SortBy orders details by absolute amount (descending) or by name.
	SortBy SortOrder

	// SeparateSources splits friend-sourced and group-sourced details
	// into their own lists.
	SeparateSources bool
}

// DisplayBalances is the presentation-ready projection of a snapshot.
type DisplayBalances struct {
	Details []models.BalanceDetail

	// Friends/Groups are populated instead of Details when
	// SeparateSources is set.
	Friends []models.BalanceDetail
	Groups  []models.BalanceDetail
}

// FormatForDisplay filters and orders a snapshot's details for a UI
// surface. Pure projection: no business logic beyond presentation ordering,
// and the snapshot itself is never modified.
func FormatForDisplay(snap *models.BalanceSnapshot, cfg DisplayConfig) DisplayBalances {
	details := make([]models.BalanceDetail, 0, len(snap.Details))
	for _, d := range snap.Details {
		if d.Amount == 0 && !cfg.ShowZeroBalances {
			continue
		}
		details = append(details, d)
	}

	switch cfg.SortBy {
	case SortByName:
		sort.SliceStable(details, func(i, j int) bool {
			if details[i].Name != details[j].Name {
				return details[i].Name < details[j].Name
			}
			return details[i].CounterpartyID < details[j].CounterpartyID
		})
	default:
		sort.SliceStable(details, func(i, j int) bool {
			ai, aj := details[i].Amount, details[j].Amount
			if ai < 0 {
				ai = -ai
			}
			if aj < 0 {
				aj = -aj
			}
			if ai != aj {
				return ai > aj
			}
			return details[i].CounterpartyID < details[j].CounterpartyID
		})
	}

	if !cfg.SeparateSources {
		return DisplayBalances{Details: details}
	}

	var out DisplayBalances
	for _, d := range details {
		if d.Source == models.SourceFriend {
			out.Friends = append(out.Friends, d)
		} else {
			out.Groups = append(out.Groups, d)
		}
	}
	return out
}
