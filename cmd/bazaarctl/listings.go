package main

import (
	"strings"

	"github.com/spf13/cobra"

	starbazaar "github.com/starbazaar/starbazaar-go"
)

var (
	browseCollection string
	browseSeller     string
	browseMaxPrice   int64
	browseMine       bool

	createNFTID string
	createPrice int64
	createAsset string
)

var listingsCmd = &cobra.Command{
	Use:   "listings",
	Short: "Browse and manage marketplace listings",
}

var listingsBrowseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse active listings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, store, err := newService()
		if err != nil {
			return err
		}
		defer store.Close()

		if browseMine {
			listings, err := svc.Backend().GetUserListings(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(listings)
		}

		listings, err := svc.Backend().GetListings(cmd.Context(), starbazaar.ListingFilter{
			Collection: browseCollection,
			Seller:     browseSeller,
			MaxPrice:   browseMaxPrice,
		})
		if err != nil {
			return err
		}
		return printJSON(listings)
	},
}

var listingsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Put an NFT up for sale",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, store, err := newService()
		if err != nil {
			return err
		}
		defer store.Close()

		listing, err := svc.Backend().CreateListing(cmd.Context(), starbazaar.CreateListingRequest{
			NFTID: createNFTID,
			Price: createPrice,
			Asset: starbazaar.Asset(strings.ToUpper(createAsset)),
		})
		if err != nil {
			return err
		}
		return printJSON(listing)
	},
}

var listingsCancelCmd = &cobra.Command{
	Use:   "cancel <listing-id>",
	Short: "Withdraw a listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, store, err := newService()
		if err != nil {
			return err
		}
		defer store.Close()

		return svc.Backend().CancelListing(cmd.Context(), args[0])
	},
}

func init() {
	listingsBrowseCmd.Flags().StringVar(&browseCollection, "collection", "", "filter by collection")
	listingsBrowseCmd.Flags().StringVar(&browseSeller, "seller", "", "filter by seller")
	listingsBrowseCmd.Flags().Int64Var(&browseMaxPrice, "max-price", 0, "filter by maximum price")
	listingsBrowseCmd.Flags().BoolVar(&browseMine, "mine", false, "show only my listings")

	listingsCreateCmd.Flags().StringVar(&createNFTID, "nft", "", "NFT id to list")
	listingsCreateCmd.Flags().Int64Var(&createPrice, "price", 0, "asking price in minor units")
	listingsCreateCmd.Flags().StringVar(&createAsset, "asset", "TON", "asset symbol")
	listingsCreateCmd.MarkFlagRequired("nft")
	listingsCreateCmd.MarkFlagRequired("price")

	listingsCmd.AddCommand(listingsBrowseCmd)
	listingsCmd.AddCommand(listingsCreateCmd)
	listingsCmd.AddCommand(listingsCancelCmd)
}
