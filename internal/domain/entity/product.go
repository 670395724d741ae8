package entity

import "time"

type ProductImage struct {
	ID           string `json:"id" firestore:"id"`
	URL          string `json:"url" firestore:"url"`
	DisplayOrder int    `json:"display_order" firestore:"displayOrder"`
}

// Product carries the catalog fields the chat subsystem needs: ownership for
// conversation creation and display fields for conversation views. The catalog
// itself is managed elsewhere.
type Product struct {
	ID        string         `json:"id" firestore:"id"`
	SellerID  string         `json:"seller_id" firestore:"sellerId"`
	Title     string         `json:"title" firestore:"title"`
	Price     float64        `json:"price" firestore:"price"`
	Images    []ProductImage `json:"images,omitempty" firestore:"images,omitempty"`
	CreatedAt time.Time      `json:"created_at" firestore:"createdAt"`
	UpdatedAt time.Time      `json:"updated_at" firestore:"updatedAt"`
}
