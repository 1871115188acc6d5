// Package signatures provides the 4-byte selector -> textual signature
// lookup consumed by function discovery (spec.md §4.5/§6). The mapping
// itself is an external collaborator per spec.md §1 ("4-byte selector ->
// textual signature table... an immutable mapping"); this package defines
// the interface and supplies a small built-in table of common selectors
// as a usable default (SPEC_FULL.md §6).
package signatures

// Table maps a 4-byte function selector to its textual signature.
type Table interface {
	Lookup(selector uint32) (string, bool)
}

// MapTable is a Table backed by a plain map.
type MapTable map[uint32]string

// Lookup implements Table.
func (t MapTable) Lookup(selector uint32) (string, bool) {
	name, ok := t[selector]
	return name, ok
}

// Known is a small, hand-curated table of widely deployed ERC-20/ERC-721/
// Ownable selectors, standing in for the bundled 4byte.directory snapshot
// the Python original ships under known_hashes/ (SPEC_FULL.md §6). It is
// intentionally partial: callers with a larger database should supply
// their own Table.
var Known Table = MapTable{
	0x70a08231: "balanceOf(address)",
	0xa9059cbb: "transfer(address,uint256)",
	0x23b872dd: "transferFrom(address,address,uint256)",
	0x095ea7b3: "approve(address,uint256)",
	0xdd62ed3e: "allowance(address,address)",
	0x18160ddd: "totalSupply()",
	0x06fdde03: "name()",
	0x95d89b41: "symbol()",
	0x313ce567: "decimals()",
	0x42966c68: "burn(uint256)",
	0x40c10f19: "mint(address,uint256)",
	0x8da5cb5b: "owner()",
	0xf2fde38b: "transferOwnership(address)",
	0x715018a6: "renounceOwnership()",
	0x6352211e: "ownerOf(uint256)",
	0x42842e0e: "safeTransferFrom(address,address,uint256)",
	0xb88d4fde: "safeTransferFrom(address,address,uint256,bytes)",
	0xa22cb465: "setApprovalForAll(address,bool)",
	0xe985e9c5: "isApprovedForAll(address,address)",
	0x081812fc: "getApproved(uint256)",
	0x01ffc9a7: "supportsInterface(bytes4)",
	0x3644e515: "DOMAIN_SEPARATOR()",
	0xd505accf: "permit(address,address,uint256,uint256,uint8,bytes32,bytes32)",
}
