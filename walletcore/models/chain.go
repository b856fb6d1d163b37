package models

import "github.com/shopspring/decimal"

// ChainType is the consensus family of a chain. It decides the signing flow and address format.
type ChainType string

const (
	ChainTypeSubstrate ChainType = "substrate"
	ChainTypeEvm       ChainType = "evm"
	ChainTypeTon       ChainType = "ton"
	ChainTypeCardano   ChainType = "cardano"
)

// AssetType tells how an asset lives on its origin chain
type AssetType string

const (
	AssetTypeNative AssetType = "NATIVE"
	AssetTypeLocal  AssetType = "LOCAL"  // pallet-assets / orml tokens
	AssetTypeErc20  AssetType = "ERC20"  // EVM contract token
	AssetTypeJetton AssetType = "JETTON" // TON jetton
	AssetTypeCip26  AssetType = "CIP26"  // Cardano native token
)

// ChainInfo is static chain metadata served by the chain registry.
type ChainInfo struct {
	Slug            string    `json:"slug" toml:"slug"`                         // e.g. "polkadot"
	Name            string    `json:"name" toml:"name"`                         // e.g. "Polkadot"
	ChainType       ChainType `json:"chain_type" toml:"chain_type"`             // substrate, evm, ton or cardano
	NativeTokenSlug string    `json:"native_token_slug" toml:"native_token_slug"` // slug of the native asset
	EvmChainID      int64     `json:"evm_chain_id,omitempty" toml:"evm_chain_id"`
	SS58Prefix      int       `json:"ss58_prefix,omitempty" toml:"ss58_prefix"`
	Bech32Prefix    string    `json:"bech32_prefix,omitempty" toml:"bech32_prefix"` // Cardano HRP, "addr" or "addr_test"
	ExplorerURL     string    `json:"explorer_url,omitempty" toml:"explorer_url"`
	RPCURLs         []string  `json:"rpc_urls,omitempty" toml:"rpc_urls"`
	// SupportsAssetFee is true when the chain accepts fee payment in non-native assets
	SupportsAssetFee bool `json:"supports_asset_fee,omitempty" toml:"supports_asset_fee"`
}

// ChainState is the runtime state of a chain connection
type ChainState struct {
	Slug      string `json:"slug"`
	Active    bool   `json:"active"`
	Connected bool   `json:"connected"`
}

// Asset is immutable once registered in the chain registry.
type Asset struct {
	Slug            string          `json:"slug" toml:"slug"`                 // e.g. "polkadot-NATIVE-DOT"
	OriginChain     string          `json:"origin_chain" toml:"origin_chain"` // chain slug the asset lives on
	Symbol          string          `json:"symbol" toml:"symbol"`
	Decimals        int32           `json:"decimals" toml:"decimals"`
	AssetType       AssetType       `json:"asset_type" toml:"asset_type"`
	ContractAddress string          `json:"contract_address,omitempty" toml:"contract_address"`
	OnChainID       string          `json:"on_chain_id,omitempty" toml:"on_chain_id"` // pallet asset id / multilocation key
	MinAmount       decimal.Decimal `json:"min_amount" toml:"min_amount"`             // existential deposit in base units
	// IsSufficient means holding this asset alone keeps the account alive
	IsSufficient bool `json:"is_sufficient,omitempty" toml:"is_sufficient"`
	// AlternativeSwapAsset points to the asset on a swap chain that represents the same value
	AlternativeSwapAsset string `json:"alternative_swap_asset,omitempty" toml:"alternative_swap_asset"`
}

// IsNative reports whether the asset is its chain's native token
func (a *Asset) IsNative() bool {
	return a.AssetType == AssetTypeNative
}

// AssetRefPath is the kind of a cross reference between two assets
type AssetRefPath string

const (
	AssetRefPathXcm   AssetRefPath = "XCM"
	AssetRefPathSwap  AssetRefPath = "SWAP"
	AssetRefPathOther AssetRefPath = "OTHER"
)

// AssetRef is a directed bridge edge (srcChain, srcAsset) -> (destChain, destAsset).
type AssetRef struct {
	SrcAsset  string       `json:"src_asset" toml:"src_asset"`
	DestAsset string       `json:"dest_asset" toml:"dest_asset"`
	SrcChain  string       `json:"src_chain" toml:"src_chain"`
	DestChain string       `json:"dest_chain" toml:"dest_chain"`
	Path      AssetRefPath `json:"path" toml:"path"`
}

// AssetRefKey builds the key used by the asset ref map
func AssetRefKey(srcAsset, destAsset string) string {
	return srcAsset + "___" + destAsset
}

// ProviderGroup is one row of the static provider -> chain set table.
type ProviderGroup struct {
	ProviderID string   `json:"provider_id" toml:"provider_id"`
	Chains     []string `json:"chains" toml:"chains"`
	// CrossChain groups can swap between any two of their chains, otherwise only within one chain
	CrossChain bool `json:"cross_chain,omitempty" toml:"cross_chain"`
}

// AmountData is a balance answer from the balance query interface
type AmountData struct {
	Value    decimal.Decimal `json:"value"`
	Decimals int32           `json:"decimals"`
	Symbol   string          `json:"symbol"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}
