package entity

// Address dirección postal usada por emisor y receptor.
type Address struct {
	Street string // DirOrigen / DirRecep
	Comuna string // CmnaOrigen / CmnaRecep
	City   string // CiudadOrigen / CiudadRecep
}

// Issuer contribuyente emisor (Emisor). Lo suministra el módulo de empresas.
type Issuer struct {
	RUT            string
	LegalName      string // RznSoc / RznSocEmisor
	Activity       string // GiroEmis / GiroEmisor (se emite en mayúsculas)
	ActivityCodes  []int  // Acteco (no se informa en boletas)
	BranchCode     string // CdgSIISucur
	Address        Address
	ResolutionNum  int    // NroResol de la autorización como emisor electrónico
	ResolutionDate string // FchResol (YYYY-MM-DD)
}

// Receptor destinatario del documento (Receptor).
type Receptor struct {
	RUT          string
	InternalCode string // CdgIntRecep
	LegalName    string // RznSocRecep
	Activity     string // GiroRecep
	Address      Address
}

// Copy devuelve una copia sin slices compartidos.
func (i Issuer) Copy() Issuer {
	i.ActivityCodes = append([]int(nil), i.ActivityCodes...)
	return i
}
