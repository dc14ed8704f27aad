package events

// Topic constants for domain events emitted by the point of sale.
const (
	TopicSaleCompleted    = "sale.completed"
	TopicSaleReturned     = "sale.returned"
	TopicSaleReturnUndone = "sale.return_undone"
	TopicCampaignSaved    = "campaign.saved"
)
