package orders

const (
	TopicOrderPlaced     = "storefront.order.placed"
	TopicRentalBooked    = "storefront.rental.booked"
	TopicRentalConfirmed = "storefront.rental.confirmed"
	TopicRentalCancelled = "storefront.rental.cancelled"
	TopicRentalActivated = "storefront.rental.activated"
	TopicRentalCompleted = "storefront.rental.completed"

	// inbound, dari scheduler/collaborator eksternal
	TopicRentalLifecycle = "storefront.rental.lifecycle"
)

// Partition key = aggregate id (order_id / rental_id), supaya urutan event per entity terjaga.
func PartitionKey(id string) []byte { return []byte(id) }
