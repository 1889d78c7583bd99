package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/arunshreyas/Marketa/internal/domain"
)

type campaignItem struct {
	campaign domain.Campaign
}

func (i campaignItem) Title() string { return i.campaign.Name }

func (i campaignItem) Description() string {
	status := i.campaign.Status
	if status == "" {
		status = string(domain.CampaignStatusDraft)
	}
	return fmt.Sprintf("%s • budget $%.0f • %s", status, i.campaign.Budget, i.campaign.Goals)
}

func (i campaignItem) FilterValue() string { return i.campaign.Name }

func (m Model) selectedCampaign() (domain.Campaign, bool) {
	item, ok := m.campaigns.SelectedItem().(campaignItem)
	if !ok {
		return domain.Campaign{}, false
	}
	return item.campaign, true
}

func (m Model) updateCampaigns(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && m.campaigns.FilterState() != list.Filtering {
		switch key.String() {
		case "enter":
			if c, ok := m.selectedCampaign(); ok {
				m.status = "Opening " + c.Name + "..."
				return m, m.openChat(c)
			}
			return m, nil
		case "d":
			if c, ok := m.selectedCampaign(); ok {
				return m, m.deleteCampaign(c.ID)
			}
			return m, nil
		case "r":
			m.status = ""
			m.err = nil
			return m, m.loadCampaigns()
		case "q":
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.campaigns, cmd = m.campaigns.Update(msg)
	return m, cmd
}
