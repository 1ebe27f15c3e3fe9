package server

// publicSnapshot serializes the state every room member may see. Hands never
// appear here; they travel only through player_hand_update to their owner.
func publicSnapshot(room *Room) map[string]any {
	players := make([]map[string]any, 0, len(room.Players))
	for i := range room.Players {
		p := &room.Players[i]
		players = append(players, map[string]any{
			"id":              p.ID,
			"username":        p.Username,
			"score":           p.Score,
			"is_host":         p.IsHost,
			"is_theme_master": p.IsThemeMaster,
			"has_played":      p.HasPlayed,
			"is_spectating":   p.IsSpectating,
			"is_active":       p.Connected,
		})
	}

	played := make([]PlayedCard, len(room.PlayedCards))
	copy(played, room.PlayedCards)
	winners := make([]int, len(room.RoundWinners))
	copy(winners, room.RoundWinners)

	return map[string]any{
		"code":               room.Code,
		"game_state":         room.GameState,
		"topic_id":           nullableID(room.TopicID),
		"personality_id":     nullableID(room.PersonalityID),
		"theme_master_id":    nullableInt(room.ThemeMasterID),
		"current_theme_card": cardPayload(room.CurrentThemeCard),
		"round_phase":        nullableString(room.RoundPhase),
		"is_generating":      room.GeneratingTheme,
		"players":            players,
		"played_cards_info":  played,
		"round_winners":      winners,
		"current_round":      room.CurrentRound,
		"total_rounds":       room.TotalRounds,
	}
}

// handPayload is the private player_hand_update body for one player.
func handPayload(player *Player) []map[string]any {
	hand := make([]map[string]any, 0, len(player.Hand))
	for _, entry := range player.Hand {
		hand = append(hand, map[string]any{
			"id":   entry.ID,
			"card": cardPayload(&entry.Card),
		})
	}
	return hand
}

func cardPayload(card *Card) any {
	if card == nil {
		return nil
	}
	return map[string]any{
		"id":        card.ID,
		"text":      card.Text,
		"card_type": card.CardType,
	}
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
