package flow

// Script templates import contracts through 0x<Name> placeholders that are
// resolved from chain.contracts at client construction.

const flowBalanceScript = `
access(all) fun main(address: Address): UFix64 {
    return getAccount(address).balance
}
`

const tokenBalancesScript = `
import MockUSD from 0xMockUSD
import MockBTC from 0xMockBTC
import FungibleToken from 0xFungibleToken

access(all) fun main(address: Address): {String: UFix64} {
    let account = getAccount(address)
    let balances: {String: UFix64} = {}

    if let usdVault = account.capabilities
        .get<&{FungibleToken.Balance}>(MockUSD.VaultPublicPath)
        .borrow() {
        balances["USD"] = usdVault.balance
    } else {
        balances["USD"] = 0.0
    }

    if let btcVault = account.capabilities
        .get<&{FungibleToken.Balance}>(MockBTC.VaultPublicPath)
        .borrow() {
        balances["BTC"] = btcVault.balance
    } else {
        balances["BTC"] = 0.0
    }

    return balances
}
`

const planIDsScript = `
import DCAContract from 0xDCAContract

access(all) fun main(userAddress: Address): [UInt64] {
    let cap = getAccount(userAddress).capabilities
        .get<&DCAContract.PlanManager>(DCAContract.PlanManagerPublicPath)
    if let manager = cap.borrow() {
        return manager.getPlanIds()
    }
    return []
}
`

const planScript = `
import DCAContract from 0xDCAContract

access(all) fun main(ownerAddress: Address, planId: UInt64): DCAContract.PlanDetails? {
    let cap = getAccount(ownerAddress).capabilities
        .get<&DCAContract.PlanManager>(DCAContract.PlanManagerPublicPath)
    if let manager = cap.borrow() {
        if let plan = manager.borrowPlan(planId: planId) {
            return plan.getPlanDetails()
        }
    }
    return nil
}
`

const plansScript = `
import DCAContract from 0xDCAContract

access(all) fun main(userAddress: Address): [DCAContract.PlanDetails] {
    let cap = getAccount(userAddress).capabilities
        .get<&DCAContract.PlanManager>(DCAContract.PlanManagerPublicPath)
    let plans: [DCAContract.PlanDetails] = []
    if let manager = cap.borrow() {
        for planId in manager.getPlanIds() {
            if let plan = manager.borrowPlan(planId: planId) {
                plans.append(plan.getPlanDetails())
            }
        }
    }
    return plans
}
`
