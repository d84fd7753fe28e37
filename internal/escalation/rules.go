package escalation

import (
	"fmt"
	"time"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
)

// defaultRules maps each alert type to its escalation ladder. Level numbers
// are implied by step order; step delays are measured from alert creation.
func defaultRules() map[domain.AlertType]domain.EscalationRule {
	return map[domain.AlertType]domain.EscalationRule{
		domain.AlertLowDeliveryRate: {
			Steps: []domain.EscalationStep{
				{Delay: 0, Roles: []domain.Role{domain.RoleAdmin}, Channels: []domain.Channel{domain.ChannelWebSocket}},
				{Delay: 15 * time.Minute, Roles: []domain.Role{domain.RoleAdmin}, Channels: []domain.Channel{domain.ChannelWebSocket, domain.ChannelEmail}},
			},
			Cooldown: 30 * time.Minute,
		},
		domain.AlertHighFailureRate: {
			Steps: []domain.EscalationStep{
				{Delay: 0, Roles: []domain.Role{domain.RoleAdmin}, Channels: []domain.Channel{domain.ChannelWebSocket}},
				{Delay: 10 * time.Minute, Roles: []domain.Role{domain.RoleAdmin}, Channels: []domain.Channel{domain.ChannelWebSocket, domain.ChannelEmail}},
			},
			Cooldown: 30 * time.Minute,
		},
		domain.AlertCriticalFailureRate: {
			Steps: []domain.EscalationStep{
				{Delay: 0, Roles: []domain.Role{domain.RoleAdmin}, Channels: []domain.Channel{domain.ChannelWebSocket, domain.ChannelEmail}},
				{Delay: 5 * time.Minute, Roles: []domain.Role{domain.RoleAdmin}, Channels: []domain.Channel{domain.ChannelWebSocket, domain.ChannelEmail, domain.ChannelSMS}},
				{Delay: 15 * time.Minute, Roles: []domain.Role{domain.RoleAdmin}, Channels: []domain.Channel{domain.ChannelWebSocket, domain.ChannelEmail, domain.ChannelSMS}},
			},
			Cooldown: 15 * time.Minute,
		},
		domain.AlertChannelDegraded: {
			Steps: []domain.EscalationStep{
				{Delay: 0, Roles: []domain.Role{domain.RoleAdmin}, Channels: []domain.Channel{domain.ChannelWebSocket, domain.ChannelEmail}},
				{Delay: 10 * time.Minute, Roles: []domain.Role{domain.RoleAdmin}, Channels: []domain.Channel{domain.ChannelWebSocket, domain.ChannelEmail, domain.ChannelSMS}},
			},
			Cooldown: 30 * time.Minute,
		},
		domain.AlertHighLatency: {
			Steps: []domain.EscalationStep{
				{Delay: 0, Roles: []domain.Role{domain.RoleAdmin}, Channels: []domain.Channel{domain.ChannelWebSocket}},
			},
			Cooldown: 30 * time.Minute,
		},
		domain.AlertStuckNotifications: {
			Steps: []domain.EscalationStep{
				{Delay: 0, Roles: []domain.Role{domain.RoleAdmin}, Channels: []domain.Channel{domain.ChannelWebSocket}},
				{Delay: 20 * time.Minute, Roles: []domain.Role{domain.RoleAdmin}, Channels: []domain.Channel{domain.ChannelWebSocket, domain.ChannelEmail}},
			},
			Cooldown: 30 * time.Minute,
		},
	}
}

func validateRule(rule domain.EscalationRule) error {
	if len(rule.Steps) == 0 {
		return fmt.Errorf("escalation rule needs at least one step")
	}
	prev := time.Duration(-1)
	for i, step := range rule.Steps {
		if step.Delay < 0 {
			return fmt.Errorf("step %d: negative delay", i)
		}
		if step.Delay <= prev && i > 0 {
			return fmt.Errorf("step %d: delays must strictly increase", i)
		}
		if len(step.Roles) == 0 {
			return fmt.Errorf("step %d: no target roles", i)
		}
		if len(step.Channels) == 0 {
			return fmt.Errorf("step %d: no channels", i)
		}
		prev = step.Delay
	}
	if rule.Cooldown < 0 {
		return fmt.Errorf("negative cooldown")
	}
	return nil
}
