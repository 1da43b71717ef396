// Package uischema loads the screen, section and field descriptors that drive
// the wizard's forms. Sections are a closed variant: Simple sections carry
// fields (optionally nesting a repeat block) and Repeat sections write child
// rows on behalf of their owning table. Repeat blocks nest recursively; Walk
// visits the tree with its owning-table chain.
package uischema
